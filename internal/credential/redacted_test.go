package credential

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedacted(t *testing.T) {
	secret := Redacted("ya29.secret")

	assert.Equal(t, "[REDACTED]", fmt.Sprint(secret))
	assert.Equal(t, "token=[REDACTED]", fmt.Sprintf("token=%v", secret))
}

func TestRecord_StringHidesTokens(t *testing.T) {
	rec := Record{
		SubjectID:    "alice",
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		Expiry:       time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}

	for _, out := range []string{fmt.Sprint(rec), fmt.Sprintf("%v", rec), fmt.Sprintf("%#v", rec)} {
		assert.NotContains(t, out, "ya29")
		assert.NotContains(t, out, "1//refresh")
		assert.Contains(t, out, "alice")
	}
	assert.Contains(t, rec.String(), "2024-05-10T12:00:00Z")
	assert.Contains(t, Record{SubjectID: "bob"}.String(), "refresh=none")
}
