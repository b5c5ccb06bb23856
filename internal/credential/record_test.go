package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecord_IsExpired(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		margin time.Duration
		want   bool
	}{
		{"no expiry", time.Time{}, time.Minute, false},
		{"future", now.Add(time.Hour), time.Minute, false},
		{"within margin", now.Add(30 * time.Second), time.Minute, true},
		{"exactly at margin", now.Add(time.Minute), time.Minute, true},
		{"past", now.Add(-time.Second), 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Record{Expiry: tc.expiry}.IsExpired(now, tc.margin))
		})
	}
}

func TestRecord_Validate(t *testing.T) {
	assert.ErrorIs(t, Record{AccessToken: "a"}.Validate(), ErrEmptySubject)
	assert.ErrorIs(t, Record{SubjectID: "alice"}.Validate(), ErrEmptyAccessToken)
	assert.NoError(t, Record{SubjectID: "alice", AccessToken: "a"}.Validate())
}

func TestNormalizeScopes(t *testing.T) {
	assert.Nil(t, NormalizeScopes(nil))
	assert.Nil(t, NormalizeScopes([]string{" ", ""}))
	assert.Equal(t, []string{"a", "b"}, NormalizeScopes([]string{" a", "b", "a", ""}))
}
