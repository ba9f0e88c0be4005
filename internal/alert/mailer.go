// Package alert notifica por email los conflictos que quedan sin
// resolución automática (estrategias keep_all y custom). El mailer se
// engancha al hook OnConflict del engine y envía en una goroutine para
// no bloquear el write path.
package alert

import (
	"crypto/tls"
	"fmt"
	"strings"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store/partition"
)

// SMTPConfig configura la conexión SMTP.
type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	To                 []string
	Username           string
	Password           string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// Mailer envía alertas de conflicto por SMTP.
type Mailer struct {
	cfg SMTPConfig
	log *zap.Logger
}

// NewMailer crea el mailer. Retorna nil si faltan host o destinatarios,
// así el caller puede dejar el hook sin configurar.
func NewMailer(cfg SMTPConfig) *Mailer {
	if cfg.Host == "" || len(cfg.To) == 0 {
		return nil
	}
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &Mailer{cfg: cfg, log: logger.Named("alert")}
}

// OnConflict es el hook para partition.Config.OnConflict.
// El envío corre en background: un SMTP caído no frena writes.
func (m *Mailer) OnConflict(v *partition.VersionedRecord) {
	go func() {
		if err := m.sendConflict(v); err != nil {
			m.log.Error("conflict alert failed", logger.RecordID(v.Record.ID), logger.Err(err))
		}
	}()
}

func (m *Mailer) sendConflict(v *partition.VersionedRecord) error {
	subject := fmt.Sprintf("[lextrail] conflicto sin resolver en record %s", v.Record.ID)

	var b strings.Builder
	fmt.Fprintf(&b, "Se detectó un write concurrente sin resolución automática.\n\n")
	fmt.Fprintf(&b, "Record ID:   %s\n", v.Record.ID)
	fmt.Fprintf(&b, "Statute:     %s\n", v.Record.StatuteID)
	fmt.Fprintf(&b, "Subject:     %s\n", v.Record.SubjectID)
	fmt.Fprintf(&b, "Origen:      %s\n", v.OriginNode)
	fmt.Fprintf(&b, "Versiones:   %d\n\n", len(v.Versions))
	fmt.Fprintf(&b, "Resolver con POST /v1/conflicts/%s/resolve\n", v.Record.ID)

	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", b.String())

	d := mail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         m.cfg.Host,
		InsecureSkipVerify: m.cfg.InsecureSkipVerify, // solo dev
	}
	switch m.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: m.cfg.InsecureSkipVerify}
	default:
		// "auto"/"starttls": go-mail negocia STARTTLS si corresponde
	}

	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	m.log.Info("conflict alert sent", logger.RecordID(v.Record.ID))
	return nil
}
