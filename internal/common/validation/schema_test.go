package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMetadata_AbsentBagIsValid(t *testing.T) {
	for notificationType := range typeSchemas {
		assert.NoError(t, ValidateMetadata(notificationType, nil), notificationType)
		assert.NoError(t, ValidateMetadata(notificationType, map[string]interface{}{}), notificationType)
	}
}

func TestValidateMetadata_ChecksPresentFieldTypes(t *testing.T) {
	assert.NoError(t, ValidateMetadata("health_alert", map[string]interface{}{
		"metric": "blood_pressure",
		"value":  150.0,
	}))

	err := ValidateMetadata("health_alert", map[string]interface{}{
		"metric": 42.0, // must be a string
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "metric")
}

func TestValidateMetadata_UnknownTypeAcceptsAnything(t *testing.T) {
	assert.NoError(t, ValidateMetadata("system_announcement", map[string]interface{}{
		"anything": []interface{}{1, "two"},
	}))
	assert.False(t, HasSchema("system_announcement"))
	assert.True(t, HasSchema("health_alert"))
}
