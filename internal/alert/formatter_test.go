package alert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lverdier/meteo-vigilance/internal/models"
)

func TestFormatSMS_KnownPhenomenon(t *testing.T) {
	msg := FormatSMS("Wind", models.ColorOrange, "Particulier", "", "100 km/h")

	assert.Contains(t, msg, "ALERTE VENT FORT")
	assert.Contains(t, msg, "100 km/h")
	assert.Contains(t, msg, "sécurisez les objets extérieurs")
	assert.True(t, strings.HasSuffix(msg, "STOP pour se désinscrire"))
}

func TestFormatSMS_FallbackTemplate(t *testing.T) {
	msg := FormatSMS("Snow-Ice", models.ColorYellow, "Particulier", "", "")

	assert.Contains(t, msg, "ALERTE MÉTÉO")
	// Missing description falls back to the color wording
	assert.Contains(t, msg, "Vigilance Yellow")
	assert.Contains(t, msg, fallbackAdvice)
}

func TestFormatSMS_UnknownProfileGetsDefaultAdvice(t *testing.T) {
	def := FormatSMS("Wind", models.ColorOrange, models.DefaultProfile, "", "")
	unknown := FormatSMS("Wind", models.ColorOrange, "Plombier", "", "")

	assert.Equal(t, def, unknown)
}

func TestFormatSMS_ProfileSpecificAdvice(t *testing.T) {
	tests := []struct {
		profile string
		want    string
	}{
		{"Particulier", "Limitez les déplacements"},
		{"Professionnel (BTP / agriculture)", "travaux en hauteur"},
		{"Nautique / pêche / plaisance", "Restez au port"},
		{"Tourisme / plages", "activités nautiques"},
	}

	for _, tt := range tests {
		msg := FormatSMS("Wind", models.ColorOrange, tt.profile, "", "")
		assert.Contains(t, msg, tt.want, "profile %s", tt.profile)
	}
}

func TestFormatEmail(t *testing.T) {
	subject, html := FormatEmail("Cyclone", models.ColorRed, "Particulier", "Ouragan en approche.", "vents 200 km/h")

	assert.Contains(t, subject, "Cyclone")
	assert.Contains(t, subject, "Vigilance Red")
	assert.Contains(t, html, "Ouragan en approche.")
	assert.Contains(t, html, "vents 200 km/h")
	assert.Contains(t, html, models.VigilanceColors[models.ColorRed].Hex)
	assert.Contains(t, html, "Préparez vos réserves")
}

func TestWelcomeMessages(t *testing.T) {
	sms := WelcomeSMS("Tourisme / plages")
	assert.Contains(t, sms, "Bienvenue")
	assert.Contains(t, sms, "Tourisme / plages")
	assert.Contains(t, sms, "STOP")

	subject, html := WelcomeEmail("Particulier", models.PrefsBoth)
	assert.Contains(t, subject, "Bienvenue")
	assert.Contains(t, html, "Particulier")
	assert.Contains(t, html, "BOTH")
}

func TestTestAlert(t *testing.T) {
	msg := TestAlertSMS("Particulier")
	assert.True(t, strings.HasPrefix(msg, "🧪 TEST ALERTE"))
	assert.Contains(t, msg, "ALERTE VENT FORT")

	subject, html := TestAlertEmail("Particulier")
	assert.True(t, strings.HasPrefix(subject, "🧪 TEST"))
	assert.Contains(t, html, "Ceci est un test")
}
