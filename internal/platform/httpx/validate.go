package httpx

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	userNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]{4,10}$`)
	roleNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,50}$`)
	nickNamePattern = regexp.MustCompile(`^[\p{L}\p{N}']{1,50}$`)
)

const passwordSymbols = ".?!&_"

// NewValidator returns a validator with the domain tags registered:
// "username", "password", "rolename" and "nickname".
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return userNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
		return roleNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return nickNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidPassword reports whether pw is 6-16 characters, starts with a letter,
// uses only letters, digits and .?!&_, and has at least one digit and one symbol.
func ValidPassword(pw string) bool {
	if len(pw) < 6 || len(pw) > 16 {
		return false
	}
	var digit, symbol bool
	for i, r := range pw {
		switch {
		case r > unicode.MaxASCII:
			return false
		case i == 0 && !unicode.IsLetter(r):
			return false
		case unicode.IsLetter(r):
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		default:
			return false
		}
	}
	return digit && symbol
}
