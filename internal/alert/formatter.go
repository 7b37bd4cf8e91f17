package alert

import (
	"fmt"
	"strings"

	"github.com/lverdier/meteo-vigilance/internal/models"
)

// Message rendering is pure: (phenomenon, color, profile) in, channel content
// out. Templates and advice texts follow the published SMS wording.

var smsTemplates = map[string]string{
	"Wind":             "⚠️ ALERTE VENT FORT — Martinique.\nRafales possibles jusqu'à {intensity}.\nConseil: {advice}",
	"Rain-Flood":       "⚠️ ALERTE PLUIES INTENSES — Martinique.\n{description}\nConseil: {advice}",
	"Storm":            "⚠️ ALERTE ORAGES — Martinique.\n{description}\nConseil: {advice}",
	"Waves-Submersion": "🌊 ALERTE HOULE/SUBMERSION — Martinique.\n{description}\nConseil: {advice}",
	"Heat Wave":        "🌡️ ALERTE CHALEUR — Martinique.\nTempératures élevées prévues.\nConseil: {advice}",
	"Cyclone":          "🌀 ALERTE CYCLONE — Martinique.\n{description}\nConseil: {advice}",
}

const fallbackTemplate = "⚠️ ALERTE MÉTÉO — Martinique.\n{description}\nConseil: {advice}"

const fallbackAdvice = "Restez vigilant et suivez les consignes."

var profileAdvice = map[string]map[string]string{
	"Particulier": {
		"Wind":             "Limitez les déplacements et sécurisez les objets extérieurs.",
		"Rain-Flood":       "Évitez les ravines et routes inondables.",
		"Storm":            "Restez à l'abri et débranchez les appareils électriques.",
		"Waves-Submersion": "Éloignez-vous du littoral.",
		"Heat Wave":        "Hydratez-vous régulièrement, restez au frais.",
		"Cyclone":          "Préparez vos réserves (eau, lampe, batteries, papiers).",
	},
	"Professionnel (BTP / agriculture)": {
		"Wind":             "Suspendez les travaux en hauteur, sécurisez le chantier.",
		"Rain-Flood":       "Reportez les travaux de terrassement.",
		"Storm":            "Mettez le matériel à l'abri.",
		"Waves-Submersion": "Évacuez les zones côtières de travail.",
		"Heat Wave":        "Adaptez les horaires, prévoyez des pauses.",
		"Cyclone":          "Sécurisez tout matériel et évacuez.",
	},
	"Nautique / pêche / plaisance": {
		"Wind":             "Restez au port, vérifiez les amarres.",
		"Rain-Flood":       "Attention à la visibilité réduite.",
		"Storm":            "Ne prenez pas la mer.",
		"Waves-Submersion": "Ne prenez pas la mer, houle dangereuse.",
		"Heat Wave":        "Hydratation renforcée en mer.",
		"Cyclone":          "Mettez les embarcations à l'abri.",
	},
	"Tourisme / plages": {
		"Wind":             "Évitez les activités nautiques.",
		"Rain-Flood":       "Reportez les excursions en montagne.",
		"Storm":            "Restez à l'hôtel ou en lieu sûr.",
		"Waves-Submersion": "Plages interdites, éloignez-vous du bord de mer.",
		"Heat Wave":        "Limitez l'exposition au soleil 11h-16h.",
		"Cyclone":          "Suivez les consignes de votre hébergement.",
	},
}

const smsFooter = "\n\nMétéo Martinique • STOP pour se désinscrire"

func adviceFor(profile, phenomenonType string) string {
	byType, ok := profileAdvice[profile]
	if !ok {
		byType = profileAdvice[models.DefaultProfile]
	}
	if advice, ok := byType[phenomenonType]; ok {
		return advice
	}
	return fallbackAdvice
}

func defaultDescription(color int) string {
	return fmt.Sprintf("Vigilance %s - %s", models.ColorName(color), models.ColorLevel(color))
}

// FormatSMS renders the SMS alert body for one subscriber profile.
// description and intensity are optional free text from the bulletin.
func FormatSMS(phenomenonType string, color int, profile, description, intensity string) string {
	template, ok := smsTemplates[phenomenonType]
	if !ok {
		template = fallbackTemplate
	}
	if intensity == "" {
		intensity = "conditions dangereuses"
	}
	if description == "" {
		description = defaultDescription(color)
	}

	msg := strings.NewReplacer(
		"{intensity}", intensity,
		"{description}", description,
		"{advice}", adviceFor(profile, phenomenonType),
	).Replace(template)

	return msg + smsFooter
}

// FormatEmail renders the email subject and HTML body for an alert.
func FormatEmail(phenomenonType string, color int, profile, description, intensity string) (subject, html string) {
	colorName := models.ColorName(color)
	subject = fmt.Sprintf("Alerte Météo Martinique — %s (Vigilance %s)", phenomenonType, colorName)

	if description == "" {
		description = defaultDescription(color)
	}
	advice := adviceFor(profile, phenomenonType)

	html = fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: %s; padding: 20px; border-radius: 12px 12px 0 0; text-align: center;">
    <h1 style="color: white; margin: 0;">Vigilance %s</h1>
    <p style="color: white; margin: 5px 0 0;">%s</p>
  </div>
  <div style="padding: 30px; background: white; border: 1px solid #e2e8f0;">
    <h2 style="margin-top: 0;">%s</h2>
    <p>%s</p>
    <div style="background: #f8fafc; border-left: 4px solid #2563eb; padding: 12px; margin: 20px 0;">
      <strong>Conseil (%s)</strong>
      <p style="margin: 10px 0 0;">%s</p>
    </div>
  </div>
  <div style="padding: 15px; background: #f1f5f9; text-align: center; border-radius: 0 0 12px 12px;">
    <p style="margin: 0; color: #64748b; font-size: 12px;">Météo Martinique — Alertes SMS &amp; Email</p>
  </div>
</div>`,
		models.VigilanceColors[color].Hex, colorName, models.ColorLevel(color),
		phenomenonType, description, profile, advice)

	if intensity != "" {
		html = strings.Replace(html, "</h2>", fmt.Sprintf("</h2>\n    <p><em>Intensité: %s</em></p>", intensity), 1)
	}

	return subject, html
}

// WelcomeSMS is the activation message sent after the subscription is
// confirmed.
func WelcomeSMS(profile string) string {
	return fmt.Sprintf("✅ Bienvenue sur Météo Martinique Alertes!\n\n"+
		"Profil: %s\n"+
		"Couverture: Martinique entière\n"+
		"Phénomènes: Tous (vent, pluie, orages, houle, cyclone, chaleur)\n\n"+
		"Vous recevrez des alertes adaptées à votre profil.\n"+
		"Envoyez STOP pour vous désinscrire.", profile)
}

// WelcomeEmail is the email variant of the activation message.
func WelcomeEmail(profile string, prefs models.NotificationPrefs) (subject, html string) {
	subject = "Bienvenue sur Météo Martinique Alertes"
	html = fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: linear-gradient(135deg, #2563eb, #06b6d4); padding: 30px; border-radius: 12px 12px 0 0; text-align: center;">
    <h1 style="color: white; margin: 0;">Bienvenue!</h1>
  </div>
  <div style="padding: 30px; background: white; border: 1px solid #e2e8f0;">
    <p style="font-size: 18px;">Votre abonnement aux alertes météo est actif.</p>
    <table style="width: 100%%; margin: 20px 0;">
      <tr><td style="padding: 8px 0; color: #64748b;">Profil</td><td style="padding: 8px 0; font-weight: bold;">%s</td></tr>
      <tr><td style="padding: 8px 0; color: #64748b;">Zone</td><td style="padding: 8px 0; font-weight: bold;">Martinique entière</td></tr>
      <tr><td style="padding: 8px 0; color: #64748b;">Notifications</td><td style="padding: 8px 0; font-weight: bold;">%s</td></tr>
    </table>
    <p>Vous recevrez des alertes adaptées à votre profil.</p>
  </div>
  <div style="padding: 15px; background: #f1f5f9; text-align: center; border-radius: 0 0 12px 12px;">
    <p style="margin: 0; color: #64748b; font-size: 12px;">Météo Martinique</p>
  </div>
</div>`, profile, strings.ToUpper(string(prefs)))
	return subject, html
}

// TestAlertSMS renders a sample Wind alert prefixed as a test.
func TestAlertSMS(profile string) string {
	return "🧪 TEST ALERTE\n\n" + FormatSMS("Wind", models.ColorYellow, profile, "", "70 km/h entre 16:00–20:00")
}

// TestAlertEmail renders the email variant of the test alert.
func TestAlertEmail(profile string) (subject, html string) {
	subject, html = FormatEmail("Wind", models.ColorYellow, profile, "TEST ALERTE — Ceci est un test.", "70 km/h entre 16:00–20:00")
	return "🧪 TEST — " + subject, html
}
