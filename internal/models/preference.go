package models

// Preference holds one recipient's delivery settings and contact data.
type Preference struct {
	RecipientID     string              `json:"recipientId"`
	Enabled         bool                `json:"enabled"`
	QuietHoursStart *int                `json:"quietHoursStart,omitempty"` // hour of day, 0-23
	QuietHoursEnd   *int                `json:"quietHoursEnd,omitempty"`
	TypeEnabled     map[string]bool     `json:"typeEnabled,omitempty"`  // absent type defaults to enabled
	TypeChannels    map[string][]Channel `json:"typeChannels,omitempty"` // default channel list per type
	Locale          string              `json:"locale,omitempty"`

	// Contact data per channel.
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	PushToken string `json:"pushToken,omitempty"`

	// Daily send caps; 0 means unlimited.
	ChannelDailyCaps map[Channel]int `json:"channelDailyCaps,omitempty"`
	GlobalDailyCap   int             `json:"globalDailyCap"`
}

// DefaultPreference is used when a recipient has no stored record:
// everything enabled, no quiet hours, no contact data beyond in-app.
func DefaultPreference(recipientID string) *Preference {
	return &Preference{
		RecipientID: recipientID,
		Enabled:     true,
	}
}

// TypeIsEnabled reports whether the recipient accepts this notification
// type. Types without an explicit entry are enabled.
func (p *Preference) TypeIsEnabled(notificationType string) bool {
	if p.TypeEnabled == nil {
		return true
	}
	enabled, ok := p.TypeEnabled[notificationType]
	if !ok {
		return true
	}
	return enabled
}

// ChannelsForType returns the recipient's preferred channels for a type.
// Falls back to in-app plus email when nothing is configured.
func (p *Preference) ChannelsForType(notificationType string) []Channel {
	if chs, ok := p.TypeChannels[notificationType]; ok && len(chs) > 0 {
		return chs
	}
	return []Channel{ChannelInApp, ChannelEmail}
}

// HasContact reports whether the contact data needed by a channel is
// present. In-app needs none.
func (p *Preference) HasContact(ch Channel) bool {
	switch ch {
	case ChannelInApp:
		return true
	case ChannelEmail:
		return p.Email != ""
	case ChannelSMS:
		return p.Phone != ""
	case ChannelChat:
		return p.ChatID != ""
	case ChannelPush:
		return p.PushToken != ""
	}
	return false
}

// ContactFor returns the raw contact value for a channel.
func (p *Preference) ContactFor(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return p.Email
	case ChannelSMS:
		return p.Phone
	case ChannelChat:
		return p.ChatID
	case ChannelPush:
		return p.PushToken
	}
	return ""
}
