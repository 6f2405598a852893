package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/services/registration"
)

// Engine is the registration engine as seen by the dispatcher
type Engine interface {
	Register(ctx context.Context, req registration.Requester, referralToken string) (*model.Participant, error)
	SubmitAddress(ctx context.Context, req registration.Requester, rawText string) (*model.Participant, error)
	Status(ctx context.Context, id model.ParticipantID) (*registration.StatusReport, error)
	AdminSummary(ctx context.Context, req registration.Requester) (*model.Summary, error)
}

// Config holds configuration for the dispatcher
type Config struct {
	// Channel is the handle users must subscribe to, e.g. "@airdrop"
	Channel string
	// BotUsername is used for invite links; may be empty
	BotUsername string
}

// Dispatcher routes events to engine operations
type Dispatcher struct {
	engine      Engine
	channel     string
	botUsername string
	logger      *slog.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(engine Engine, cfg Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		engine:      engine,
		channel:     cfg.Channel,
		botUsername: strings.TrimPrefix(cfg.BotUsername, "@"),
		logger:      logger,
	}
}

// Handle processes one event. A nil reply means nothing should be sent.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) *Reply {
	if !ev.Direct {
		return nil
	}

	req := registration.Requester{
		ID:          ev.Sender.ID,
		Username:    ev.Sender.Username,
		DisplayName: ev.Sender.DisplayName,
	}

	switch ev.Kind {
	case EventCommand:
		return d.handleCommand(ctx, req, ev)
	case EventText:
		return d.submitAddress(ctx, req, ev.Text)
	case EventButton:
		return d.handleButton(ctx, req, ev.Data)
	default:
		return nil
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, req registration.Requester, ev Event) *Reply {
	switch strings.ToLower(ev.Command) {
	case CommandStart:
		return d.register(ctx, req, ev.Args)
	case CommandStatus:
		return d.status(ctx, req)
	case CommandStats:
		return d.adminSummary(ctx, req)
	default:
		return d.helpReply()
	}
}

func (d *Dispatcher) handleButton(ctx context.Context, req registration.Requester, data string) *Reply {
	switch data {
	case ButtonStatus:
		return d.status(ctx, req)
	case ButtonCheckSubscription:
		return d.register(ctx, req, "")
	case ButtonHelp:
		return d.helpReply()
	default:
		d.logger.Debug("unknown button", slog.String("data", data))
		return nil
	}
}

func (d *Dispatcher) register(ctx context.Context, req registration.Requester, referralToken string) *Reply {
	_, err := d.engine.Register(ctx, req, referralToken)
	switch {
	case err == nil:
		return registeredReply()
	case errors.Is(err, model.ErrIneligible):
		return d.ineligibleReply()
	case errors.Is(err, model.ErrAlreadyRegistered):
		report, statusErr := d.engine.Status(ctx, req.ID)
		if statusErr != nil {
			return d.failure("status", req, statusErr)
		}
		return d.statusReply(report, "<b>You are already taking part in the airdrop.</b>")
	default:
		return d.failure("register", req, err)
	}
}

func (d *Dispatcher) submitAddress(ctx context.Context, req registration.Requester, text string) *Reply {
	p, err := d.engine.SubmitAddress(ctx, req, text)
	switch {
	case err == nil:
		return addressSavedReply(p)
	case errors.Is(err, model.ErrInvalidAddress):
		return invalidAddressReply()
	case errors.Is(err, model.ErrNotRegistered):
		return notRegisteredReply()
	case errors.Is(err, model.ErrAlreadySubmitted):
		return alreadySubmittedReply(p)
	default:
		return d.failure("submit_address", req, err)
	}
}

func (d *Dispatcher) status(ctx context.Context, req registration.Requester) *Reply {
	report, err := d.engine.Status(ctx, req.ID)
	switch {
	case err == nil:
		return d.statusReply(report, "<b>Airdrop status</b>")
	case errors.Is(err, model.ErrNotRegistered):
		return notRegisteredReply()
	default:
		return d.failure("status", req, err)
	}
}

func (d *Dispatcher) adminSummary(ctx context.Context, req registration.Requester) *Reply {
	summary, err := d.engine.AdminSummary(ctx, req)
	switch {
	case err == nil:
		return summaryReply(summary)
	case errors.Is(err, model.ErrAccessDenied):
		return accessDeniedReply()
	default:
		return d.failure("admin_summary", req, err)
	}
}

func (d *Dispatcher) failure(op string, req registration.Requester, err error) *Reply {
	d.logger.Error("operation failed",
		slog.String("op", op),
		slog.String("participant_id", string(req.ID)),
		slog.String("error", err.Error()),
	)
	return failureReply()
}
