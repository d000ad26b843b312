package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys_Builders(t *testing.T) {
	assert.Equal(t, "banyan:task:abc", Task("abc"))
	assert.Equal(t, "banyan:active:email_send", Active("email_send"))
	assert.Equal(t, "banyan:chain:abc", Chain("abc"))
	assert.Equal(t, "banyan:{mail}:ready:email_send", Ready("mail", "email_send"))
	assert.Equal(t, "10:email_send:user-1", UniqueField("email_send", "user-1"))
	assert.Equal(t, "banyan:task:", TaskPrefix)
}

func TestKeys_UniqueFieldIsUnambiguous(t *testing.T) {
	assert.NotEqual(t, UniqueField("a:b", "c"), UniqueField("a", "b:c"))
	assert.NotEqual(t, UniqueField("a", ""), UniqueField("", "a"))
}

func TestKeys_For(t *testing.T) {
	q := For("mail", []string{"email_digest", "email_send"})
	assert.Equal(t, "banyan:{mail}:ready:email_send", q.Ready("email_send"))
	// names outside the precomputed set are still built
	assert.Equal(t, "banyan:{mail}:ready:other", q.Ready("other"))
	assert.Equal(t, []string{
		Counts,
		"banyan:{mail}:ready:email_digest",
		"banyan:{mail}:ready:email_send",
	}, q.ClaimKeys())
}
