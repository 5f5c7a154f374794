package deid

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
	"github.com/ehr/hl7deid/internal/platform/report"
)

// Gateway de-identifies messages received over MLLP and drops the results
// into an outbox directory, one file per message.
type Gateway struct {
	items    []*ConfigItem
	provider GeneratorProvider
	sink     report.Sink
	outbox   string
	logger   zerolog.Logger
	observer Observer
}

// NewGateway returns a gateway writing to outbox. An empty outbox disables
// writing; the message is still de-identified and acknowledged.
func NewGateway(items []*ConfigItem, provider GeneratorProvider, sink report.Sink, outbox string, logger zerolog.Logger) *Gateway {
	if sink == nil {
		sink = report.Nop{}
	}
	return &Gateway{
		items:    items,
		provider: provider,
		sink:     sink,
		outbox:   outbox,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

// WithObserver sends the engine measurements of every message to obs.
func (gw *Gateway) WithObserver(obs Observer) *Gateway {
	gw.observer = obs
	return gw
}

// Handler returns the MLLP message handler. It answers AA when the message
// was de-identified and stored, AE with the failure text otherwise.
func (gw *Gateway) Handler() hl7v2.MessageHandler {
	return func(msg *hl7v2.Message) *hl7v2.Message {
		out, err := DeIdentifyObserved(msg, CloneItems(gw.items), gw.provider, gw.sink, gw.observer)
		if err != nil {
			gw.logger.Warn().Err(err).Str("control_id", msg.ControlID).Msg("de-identification failed")
			return hl7v2.GenerateACK(msg, "AE", err.Error())
		}

		path, err := gw.store(out)
		if err != nil {
			gw.logger.Error().Err(err).Str("control_id", msg.ControlID).Msg("failed to write outbox")
			return hl7v2.GenerateACK(msg, "AE", err.Error())
		}

		gw.logger.Info().
			Str("control_id", msg.ControlID).
			Str("type", msg.Type).
			Str("path", path).
			Msg("message de-identified")
		return hl7v2.GenerateACK(msg, "AA", "")
	}
}

func (gw *Gateway) store(msg *hl7v2.Message) (string, error) {
	if gw.outbox == "" {
		return "", nil
	}
	if err := os.MkdirAll(gw.outbox, 0o755); err != nil {
		return "", fmt.Errorf("deid: create outbox: %w", err)
	}
	path := filepath.Join(gw.outbox, uuid.NewString()+".hl7")
	if err := os.WriteFile(path, []byte(msg.InputString), 0o600); err != nil {
		return "", fmt.Errorf("deid: write outbox: %w", err)
	}
	return path, nil
}
