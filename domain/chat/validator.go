package chat

import (
	"crm-chat/domain"
	"crm-chat/errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// body counts characters once trimmed
	_ = v.RegisterValidation("body", func(fl validator.FieldLevel) bool {
		return domain.BodyLength(domain.NormalizeBody(fl.Field().String())) <= domain.MaxMessageLength
	})
	return v
}

// Validate rejects a command before any network call. Message bodies are
// checked trimmed, however the command was built.
// The returned error wraps one of the validation sentinels of package errors.
func Validate(cmd Command) error {
	switch c := cmd.(type) {
	case nil:
		return errors.ErrInvalidCommand
	case SendMessageCommand:
		cmd = c.Normalized()
	case *SendMessageCommand:
		if c == nil {
			return errors.ErrInvalidCommand
		}
		normalized := c.Normalized()
		cmd = &normalized
	}
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrors) == 0 {
		return fmt.Errorf("%w: %v", errors.ErrInvalidCommand, err)
	}
	return translate(fieldErrors[0])
}

func translate(fe validator.FieldError) error {
	switch field := fe.Field(); {
	case field == "Chat":
		return errors.ErrNoChatSelected
	case field == "Body" && fe.Tag() == "body":
		return fmt.Errorf("%w: %d characters max", errors.ErrMessageTooLong, domain.MaxMessageLength)
	case field == "Body":
		return errors.ErrEmptyMessage
	case strings.HasPrefix(field, "MemberIDs"):
		return errors.ErrNoParticipantSelected
	case field == "ParticipantID":
		return errors.ErrNoParticipantSelected
	default:
		return fmt.Errorf("%w: %s failed on '%s'", errors.ErrInvalidCommand, field, fe.Tag())
	}
}
