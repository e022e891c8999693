package mail

import (
	"context"
	"fmt"
	"html"

	"github.com/resend/resend-go/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pictoria-server/internal/domain"
)

// Notifier sends transactional email. The webhook reconciler is its only
// caller today.
type Notifier interface {
	SendTrainingStatus(ctx context.Context, to, modelName string, status domain.TrainingStatus, locale string) error
}

type Options struct {
	APIKey string
	From   string
}

type resendNotifier struct {
	client *resend.Client
	from   string
}

// NewNotifier builds a Resend-backed Notifier. An empty API key yields a
// disabled notifier that errors on send, so a missing key is caught loudly
// rather than dropping mail on the floor.
func NewNotifier(opts Options) Notifier {
	if opts.APIKey == "" {
		return disabledNotifier{}
	}
	return &resendNotifier{client: resend.NewClient(opts.APIKey), from: opts.From}
}

func (n *resendNotifier) SendTrainingStatus(ctx context.Context, to, modelName string, status domain.TrainingStatus, locale string) error {
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{to},
		Subject: Subject(modelName, status, locale),
		Html:    Body(modelName, status, locale),
	}
	if _, err := n.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("mail: send training status: %w", err)
	}
	return nil
}

type disabledNotifier struct{}

func (disabledNotifier) SendTrainingStatus(context.Context, string, string, domain.TrainingStatus, string) error {
	return domain.ErrMailerNotEnabled
}

var titleCaser = cases.Title(language.English)

// localeText holds the translated copy for one negotiated locale. The provider
// status itself is reported verbatim, never translated.
type localeText struct {
	subject     string // fmt: status, model name
	readyTitle  string
	readyBody   string // fmt: model name
	updateTitle string
	updateBody  string // fmt: model name, status
}

var texts = map[string]localeText{
	"en": {
		subject:     "Model training %s: %s",
		readyTitle:  "Your model is ready",
		readyBody:   "Training for <strong>%s</strong> finished successfully. You can start generating images with it right away.",
		updateTitle: "Training update",
		updateBody:  "Training for <strong>%s</strong> ended with status <strong>%s</strong>.",
	},
	"es": {
		subject:     "Entrenamiento del modelo %s: %s",
		readyTitle:  "Tu modelo está listo",
		readyBody:   "El entrenamiento de <strong>%s</strong> terminó correctamente. Ya puedes generar imágenes con él.",
		updateTitle: "Actualización del entrenamiento",
		updateBody:  "El entrenamiento de <strong>%s</strong> terminó con el estado <strong>%s</strong>.",
	},
	"de": {
		subject:     "Modelltraining %s: %s",
		readyTitle:  "Dein Modell ist bereit",
		readyBody:   "Das Training für <strong>%s</strong> wurde erfolgreich abgeschlossen. Du kannst sofort Bilder damit generieren.",
		updateTitle: "Trainings-Update",
		updateBody:  "Das Training für <strong>%s</strong> endete mit dem Status <strong>%s</strong>.",
	},
	"fr": {
		subject:     "Entraînement du modèle %s : %s",
		readyTitle:  "Votre modèle est prêt",
		readyBody:   "L'entraînement de <strong>%s</strong> s'est terminé avec succès. Vous pouvez générer des images dès maintenant.",
		updateTitle: "Mise à jour de l'entraînement",
		updateBody:  "L'entraînement de <strong>%s</strong> s'est terminé avec le statut <strong>%s</strong>.",
	},
}

func textFor(locale string) localeText {
	if t, ok := texts[locale]; ok {
		return t
	}
	return texts["en"]
}

// Subject reports the provider status verbatim, title-cased for the header.
func Subject(modelName string, status domain.TrainingStatus, locale string) string {
	return fmt.Sprintf(textFor(locale).subject, titleCaser.String(string(status)), modelName)
}

// Body renders the notification markup; content mirrors the product's email
// template, translated per the negotiated locale.
func Body(modelName string, status domain.TrainingStatus, locale string) string {
	t := textFor(locale)
	name := html.EscapeString(modelName)
	if status == domain.StatusSucceeded {
		return fmt.Sprintf("<h2>%s</h2><p>%s</p>", t.readyTitle, fmt.Sprintf(t.readyBody, name))
	}
	body := fmt.Sprintf(t.updateBody, name, html.EscapeString(string(status)))
	return fmt.Sprintf("<h2>%s</h2><p>%s</p>", t.updateTitle, body)
}
