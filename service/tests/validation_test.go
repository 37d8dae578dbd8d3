package service_test

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/service"
)

func TestValidateSessionId(t *testing.T) {
	assert.NoError(t, service.ValidateSessionId(newSessionId(t)))

	assert.Error(t, service.ValidateSessionId(""))
	assert.Error(t, service.ValidateSessionId("not-a-uuid"))

	// Only v7 ids are accepted
	v4, err := uuid.NewV4()
	assert.NoError(t, err)
	assert.Error(t, service.ValidateSessionId(v4.String()))
}

func TestValidateStroke(t *testing.T) {
	base := validStroke("layer1")
	assert.NoError(t, service.ValidateStroke(base))

	noPoints := base
	noPoints.Points = nil
	assert.Error(t, service.ValidateStroke(noPoints))

	tooMany := base
	tooMany.Points = make([]models.Point, 2001)
	assert.Error(t, service.ValidateStroke(tooMany))

	badColor := base
	badColor.BrushColor = "blue"
	assert.Error(t, service.ValidateStroke(badColor))

	badAuthorColor := base
	badAuthorColor.AuthorColor = "#12"
	assert.Error(t, service.ValidateStroke(badAuthorColor))

	hugeBrush := base
	hugeBrush.BrushSize = 500
	assert.Error(t, service.ValidateStroke(hugeBrush))

	badOpacity := base
	badOpacity.Opacity = 1.2
	assert.Error(t, service.ValidateStroke(badOpacity))

	badMode := base
	badMode.ColorMode = models.ColorMode(9)
	assert.Error(t, service.ValidateStroke(badMode))

	badPressure := base
	badPressure.Points = []models.Point{{X: 0, Y: 0, Pressure: 2}}
	assert.Error(t, service.ValidateStroke(badPressure))

	rainbow := base
	rainbow.ColorMode = models.ColorRainbow
	assert.NoError(t, service.ValidateStroke(rainbow))
}

func TestValidateOpacity(t *testing.T) {
	assert.NoError(t, service.ValidateOpacity(0))
	assert.NoError(t, service.ValidateOpacity(1))
	assert.Error(t, service.ValidateOpacity(-0.1))
	assert.Error(t, service.ValidateOpacity(1.1))
}
