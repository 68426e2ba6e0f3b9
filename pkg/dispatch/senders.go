package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/mealkitz/orderflow/pkg/config"
	"github.com/mealkitz/orderflow/pkg/logger"
)

// httpClient is shared by all HTTP-backed senders. Per-attempt deadlines come
// from the queue's context; this is a hard backstop.
var httpClient = &http.Client{Timeout: 45 * time.Second}

// ---------------------------------------------------------------------------
// WhatsApp / SMS / Voice — Twilio-style REST API
// ---------------------------------------------------------------------------

// NewWhatsAppSender sends via a Twilio-compatible messaging API with
// whatsapp:-prefixed addresses.
func NewWhatsAppSender(cfg config.ProviderConfig) SendFunc {
	return func(ctx context.Context, oc OrderContext, body string) bool {
		form := url.Values{}
		form.Set("To", "whatsapp:"+oc.Phone)
		form.Set("From", "whatsapp:"+cfg.From)
		form.Set("Body", body)
		return postTwilioForm(ctx, cfg, "Messages.json", form, "whatsapp", oc.OrderID)
	}
}

// NewSMSSender sends plain SMS via the same Twilio-compatible API.
func NewSMSSender(cfg config.ProviderConfig) SendFunc {
	return func(ctx context.Context, oc OrderContext, body string) bool {
		form := url.Values{}
		form.Set("To", oc.Phone)
		form.Set("From", cfg.From)
		form.Set("Body", body)
		return postTwilioForm(ctx, cfg, "Messages.json", form, "sms", oc.OrderID)
	}
}

// NewVoiceSender places a call that reads the notification body aloud.
func NewVoiceSender(cfg config.ProviderConfig) SendFunc {
	return func(ctx context.Context, oc OrderContext, body string) bool {
		form := url.Values{}
		form.Set("To", oc.Phone)
		form.Set("From", cfg.From)
		form.Set("Twiml", fmt.Sprintf("<Response><Say>%s</Say></Response>", xmlEscape(body)))
		return postTwilioForm(ctx, cfg, "Calls.json", form, "voice", oc.OrderID)
	}
}

func postTwilioForm(ctx context.Context, cfg config.ProviderConfig, resource string, form url.Values, channel, orderID string) bool {
	endpoint := fmt.Sprintf("%s/Accounts/%s/%s", strings.TrimRight(cfg.APIBase, "/"), cfg.AccountID, resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		logSendFailure(channel, orderID, err.Error())
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cfg.AccountID, cfg.AuthToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		logSendFailure(channel, orderID, err.Error())
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logSendFailure(channel, orderID, fmt.Sprintf("provider returned %d", resp.StatusCode))
		return false
	}
	return true
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }

// ---------------------------------------------------------------------------
// Email — SMTP
// ---------------------------------------------------------------------------

// NewEmailSender delivers via SMTP with a minimal order-update envelope.
func NewEmailSender(cfg config.SMTPConfig) SendFunc {
	return func(ctx context.Context, oc OrderContext, body string) bool {
		if oc.Email == "" {
			logSendFailure("email", oc.OrderID, "recipient has no email address")
			return false
		}

		msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Order %s update\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
			cfg.From, oc.Email, oc.OrderID, body)

		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		var auth smtp.Auth
		if cfg.User != "" {
			auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
		}

		done := make(chan error, 1)
		go func() {
			done <- smtp.SendMail(addr, auth, cfg.From, []string{oc.Email}, []byte(msg))
		}()

		// smtp.SendMail is not context-aware; bound it ourselves.
		select {
		case err := <-done:
			if err != nil {
				logSendFailure("email", oc.OrderID, err.Error())
				return false
			}
			return true
		case <-ctx.Done():
			logSendFailure("email", oc.OrderID, ctx.Err().Error())
			return false
		}
	}
}

// ---------------------------------------------------------------------------
// Instagram — Graph-style messaging API
// ---------------------------------------------------------------------------

// NewInstagramSender delivers direct messages through a Graph-style JSON API.
func NewInstagramSender(cfg config.ProviderConfig) SendFunc {
	return func(ctx context.Context, oc OrderContext, body string) bool {
		if oc.InstagramHandle == "" {
			logSendFailure("instagram", oc.OrderID, "recipient has no instagram handle")
			return false
		}

		payload, err := json.Marshal(map[string]interface{}{
			"recipient": map[string]string{"username": oc.InstagramHandle},
			"message":   map[string]string{"text": body},
		})
		if err != nil {
			logSendFailure("instagram", oc.OrderID, err.Error())
			return false
		}

		endpoint := fmt.Sprintf("%s/%s/messages", strings.TrimRight(cfg.APIBase, "/"), cfg.AccountID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			logSendFailure("instagram", oc.OrderID, err.Error())
			return false
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)

		resp, err := httpClient.Do(req)
		if err != nil {
			logSendFailure("instagram", oc.OrderID, err.Error())
			return false
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			logSendFailure("instagram", oc.OrderID, fmt.Sprintf("provider returned %d", resp.StatusCode))
			return false
		}
		return true
	}
}

func logSendFailure(channel, orderID, reason string) {
	logger.WarnCF("dispatch", "Delivery attempt failed", map[string]interface{}{
		"channel":  channel,
		"order_id": orderID,
		"reason":   reason,
	})
}
