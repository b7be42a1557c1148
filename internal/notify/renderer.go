package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	stderrors "notifyhub/internal/common/errors"
	"notifyhub/internal/common/logger"
	"notifyhub/internal/models"
	"notifyhub/internal/storage"
)

// Rendered is a title/content pair ready for dispatch. Templated reports
// whether the pair came from a stored template or from the caller.
type Rendered struct {
	Title     string
	Content   string
	Templated bool
}

type templateCacheEntry struct {
	template *models.Template
	expires  time.Time
}

// Renderer resolves stored templates and substitutes {{key}} placeholders
// with dotted-path lookup into the data bag. Template lookups are cached
// with a short TTL; an explicit template update invalidates the whole cache.
type Renderer struct {
	templates storage.TemplateStore
	cacheTTL  time.Duration
	logger    logger.Logger

	mu    sync.RWMutex
	cache map[string]templateCacheEntry
}

func NewRenderer(templates storage.TemplateStore, cacheTTL time.Duration, log logger.Logger) *Renderer {
	return &Renderer{
		templates: templates,
		cacheTTL:  cacheTTL,
		logger:    log,
		cache:     make(map[string]templateCacheEntry),
	}
}

// Render produces the title/content for one notification. An explicit
// title/content pair from the caller skips template lookup entirely but
// still goes through placeholder substitution. Template usage is counted as
// a side effect.
func (r *Renderer) Render(ctx context.Context, notificationType string, channel models.Channel, locale, explicitTitle, explicitContent string, data map[string]interface{}) (Rendered, error) {
	if explicitTitle != "" || explicitContent != "" {
		return Rendered{
			Title:   Substitute(explicitTitle, data),
			Content: Substitute(explicitContent, data),
		}, nil
	}

	tpl, err := r.lookup(ctx, notificationType, channel, locale)
	if err != nil {
		return Rendered{}, err
	}
	if tpl == nil {
		return Rendered{}, stderrors.NewTemplateNotFoundError(notificationType)
	}

	if err := r.templates.RecordUsage(ctx, tpl.ID); err != nil {
		r.logger.Warn("template usage tracking failed", map[string]interface{}{
			"templateId": tpl.ID,
			"error":      err.Error(),
		})
	}

	return Rendered{
		Title:     Substitute(tpl.Title, data),
		Content:   Substitute(tpl.Content, data),
		Templated: true,
	}, nil
}

// ChannelOverride returns a rendering from a channel-specific template when
// one exists, and ok=false otherwise. Used at dispatch time so a channel
// with its own template wording does not reuse the default rendering.
func (r *Renderer) ChannelOverride(ctx context.Context, notificationType string, channel models.Channel, locale string, data map[string]interface{}) (Rendered, bool) {
	tpl, err := r.lookup(ctx, notificationType, channel, locale)
	if err != nil || tpl == nil || tpl.Channel != string(channel) {
		return Rendered{}, false
	}
	return Rendered{
		Title:   Substitute(tpl.Title, data),
		Content: Substitute(tpl.Content, data),
	}, true
}

// Invalidate drops every cached template. Called after a template upsert.
func (r *Renderer) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]templateCacheEntry)
	r.mu.Unlock()
}

func (r *Renderer) lookup(ctx context.Context, notificationType string, channel models.Channel, locale string) (*models.Template, error) {
	key := notificationType + "|" + string(channel) + "|" + locale

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.template, nil
	}

	tpl, err := r.templates.Find(ctx, notificationType, string(channel), locale)
	if err != nil {
		return nil, stderrors.NewQueryExecutionError(err)
	}

	r.mu.Lock()
	r.cache[key] = templateCacheEntry{template: tpl, expires: time.Now().Add(r.cacheTTL)}
	r.mu.Unlock()
	return tpl, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// Substitute replaces {{key}} placeholders with values from the data bag.
// Keys use dotted-path lookup into nested maps. Unresolved placeholders are
// left verbatim.
func Substitute(tmpl string, data map[string]interface{}) string {
	if tmpl == "" || len(data) == 0 {
		return tmpl
	}
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := lookupPath(data, path)
		if !ok {
			return match
		}
		return formatValue(value)
	})
}

func lookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; print integers without the
		// trailing decimal.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
