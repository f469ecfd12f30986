package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/appropriation-engine/core"
	"github.com/warp/appropriation-engine/notify"
)

func grantedActivity() core.Activity {
	end := core.NewDate(2026, time.June, 30)
	return core.Activity{
		ID:              "act-1",
		AppropriationID: "ap-1",
		Type:            core.MainActivity,
		Status:          core.StatusGranted,
		StartDate:       core.NewDate(2026, time.January, 1),
		EndDate:         &end,
		Note:            "Vederlag <efter> revurdering",
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Aktivitet oprettet", notify.Subject(core.NotifyCreated))
	assert.Equal(t, "Aktivitet opdateret", notify.Subject(core.NotifyUpdated))
	assert.Equal(t, "Aktivitet udgået", notify.Subject(core.NotifyExpired))
}

func TestEmailNotifier_Sends(t *testing.T) {
	// GIVEN: An email notifier with a capturing send function
	// WHEN: An activity expires
	// THEN: One HTML mail goes to the payments office with an encoded subject

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	n := &notify.EmailNotifier{
		Addr: "smtp.example.dk:25",
		From: "bevillinger@example.dk",
		To:   []string{"udbetalinger@example.dk"},
		Send: func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, string(msg)
			return nil
		},
	}

	require.NoError(t, n.Notify(context.Background(), core.NotifyExpired, grantedActivity()))
	assert.Equal(t, "smtp.example.dk:25", gotAddr)
	assert.Equal(t, []string{"udbetalinger@example.dk"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: =?UTF-8?q?Aktivitet_udg=C3=A5et?=\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, gotMsg, "<td>2026-06-30</td>")
	assert.Contains(t, gotMsg, "Vederlag &lt;efter&gt; revurdering", "notes are escaped")
}

func TestEmailNotifier_SendError(t *testing.T) {
	n := &notify.EmailNotifier{
		Send: func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") },
	}
	err := n.Notify(context.Background(), core.NotifyCreated, grantedActivity())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "act-1")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	require.NoError(t, n.Notify(context.Background(), core.NotifyUpdated, grantedActivity()))
	line := buf.String()
	assert.Contains(t, line, `"kind":"updated"`)
	assert.Contains(t, line, `"activity_id":"act-1"`)
	assert.Contains(t, line, `"end_date":"2026-06-30"`)
}

type failing struct{ err error }

func (f failing) Notify(context.Context, core.NotificationKind, core.Activity) error { return f.err }

func TestMulti_JoinsErrors(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	var buf bytes.Buffer
	m := notify.Multi{
		failing{first},
		notify.LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))},
		failing{second},
	}

	err := m.Notify(context.Background(), core.NotifyCreated, grantedActivity())
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.True(t, strings.Contains(buf.String(), "activity notification"), "later notifiers still run")
}
