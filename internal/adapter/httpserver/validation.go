package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

const maxBodyBytes = 1 << 20

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New(validator.WithRequiredStructEnabled())
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

var interviewIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)

// validateInterviewID checks the {id} path segment.
func validateInterviewID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: interview id is required", domain.ErrInvalidArgument)
	}
	if !interviewIDRe.MatchString(id) {
		return fmt.Errorf("%w: interview id must be 1-100 letters, digits, '-' or '_'", domain.ErrInvalidArgument)
	}
	return nil
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// The returned details map field names to the failed rule.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidArgument, maxBodyBytes)
		case errors.Is(err, io.EOF):
			return nil, fmt.Errorf("%w: body is required", domain.ErrInvalidArgument)
		default:
			return nil, fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidArgument, err)
		}
	}
	if err := getValidator().Struct(dst); err != nil {
		verrs := map[string]string{}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				verrs[fe.Field()] = fe.Tag()
			}
		}
		return verrs, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
	}
	return nil, nil
}
