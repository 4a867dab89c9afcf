package issuance

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const applicationSchema = `{
  "$id": "https://agentattest.io/schemas/application.json",
  "type": "object",
  "required": ["agentDid", "artifactHash", "ownerName", "contactEmail", "claimedPermissions"],
  "properties": {
    "agentDid": {"type": "string", "minLength": 1},
    "artifactHash": {"type": "string", "minLength": 1},
    "ownerName": {"type": "string", "minLength": 1},
    "contactEmail": {"type": "string", "minLength": 1},
    "claimedPermissions": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

var applicationValidator = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewStringLoader(applicationSchema))
	if err != nil {
		panic(err)
	}
	return s
}()

// ValidateApplication checks an application document. data is any value that
// marshals to JSON, typically an ApplicationRequest or a decoded body.
func ValidateApplication(data interface{}) error {
	result, err := applicationValidator.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !result.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, validationErrors(result.Errors()))
	}
	return nil
}

func validationErrors(errs []gojsonschema.ResultError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.String())
	}
	return "[" + strings.Join(msgs, "; ") + "]"
}
