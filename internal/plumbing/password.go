package plumbing

import (
	"context"
	"strings"
)

// PasswordGenerator is the external helper that emits one fresh password
// per invocation. Output must be shell- and SQL-literal-safe ASCII.
var PasswordGenerator = "/usr/local/bin/local_pwgen"

// Password wraps a generated secret together with a rendering template.
// Formatting through the fmt package redacts the secret; call Reveal to
// obtain the real rendered line when writing it somewhere that needs it.
type Password struct {
	value    string
	template string
}

// NewPassword wraps an existing secret.
func NewPassword(value string) Password {
	return Password{value: value, template: "%s"}
}

// GeneratePassword invokes the external password generator.
func GeneratePassword(ctx context.Context) (Password, error) {
	out, err := Command(ctx, PasswordGenerator)
	if err != nil {
		return Password{}, err
	}
	return NewPassword(strings.TrimRight(string(out), "\r\n")), nil
}

// Wrap derives a password embedding the same secret in a larger line,
// e.g. pw.Wrap("user:%s") for a chpasswd record. Redaction is preserved.
func (p Password) Wrap(template string) Password {
	return Password{value: p.value, template: template}
}

// Reveal renders the template with the secret substituted.
func (p Password) Reveal() string {
	return strings.ReplaceAll(p.template, "%s", p.value)
}

// String renders the template with the secret redacted. This is what the
// fmt verbs and the loggers see.
func (p Password) String() string {
	return strings.ReplaceAll(p.template, "%s", "***")
}

// Empty reports whether no secret is held.
func (p Password) Empty() bool {
	return p.value == ""
}
