package mail

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingMailer) Send(_ context.Context, to string, tmpl Template, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, to+":"+string(tmpl))
	return r.err
}

func TestRender_EscapesFields(t *testing.T) {
	r, err := render(TemplateVerifyEmail, map[string]string{
		"username": "<script>x</script>",
		"otp":      "012345",
		"link":     "https://app.example.com/verify?token=abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "Confirm your email address", r.Subject)
	assert.Contains(t, r.HTML, "012345")
	assert.NotContains(t, r.HTML, "<script>")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := render(Template("nope"), nil)
	assert.Error(t, err)
}

func TestAsync_DeliversInBackground(t *testing.T) {
	rec := &recordingMailer{}
	a := NewAsync(rec, time.Second)

	require.NoError(t, a.Send(context.Background(), "a@example.com", TemplateResetPassword, nil))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))

	assert.Equal(t, []string{"a@example.com:reset-password"}, rec.sent)
}

func TestAsync_SwallowsFailures(t *testing.T) {
	rec := &recordingMailer{err: errors.New("smtp down")}
	a := NewAsync(rec, time.Second)

	assert.NoError(t, a.Send(context.Background(), "a@example.com", TemplateVerifyEmail, nil))
	require.NoError(t, a.Wait(context.Background()))
	assert.Len(t, rec.sent, 1)
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer().Send(context.Background(), "a@example.com", TemplateVerifyEmail, map[string]string{"otp": "123456"}))
}
