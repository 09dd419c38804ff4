// Package validation checks form input for boards, columns, cards and board
// settings. Input arrives as string values, the way the transport delivers
// it, and leaves either normalized values or per-field errors.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"retro/internal/model"
)

// Kind names the entity a form edits.
type Kind string

const (
	KindBoard    Kind = "board"
	KindSettings Kind = "settings"
	KindColumn   Kind = "column"
	KindCard     Kind = "card"
)

const (
	MaxNameLength    = 80
	MaxTitleLength   = 60
	MaxContentLength = 2000
	MaxVotesPerUser  = 99
)

// Errors maps a field name to a human readable message.
type Errors map[string]string

func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e[k]
	}
	return strings.Join(parts, "; ")
}

// ErrUnknownKind is returned for a Kind without rules.
var ErrUnknownKind = errors.New("unknown form kind")

var boolValues = []interface{}{"true", "false"}

var rules = map[Kind]validation.MapRule{
	KindBoard: validation.Map(
		validation.Key("name",
			validation.Required.Error("name is required"),
			validation.RuneLength(1, MaxNameLength).Error(fmt.Sprintf("name must be at most %d characters", MaxNameLength)),
		),
	),
	KindColumn: validation.Map(
		validation.Key("title",
			validation.Required.Error("title is required"),
			validation.RuneLength(1, MaxTitleLength).Error(fmt.Sprintf("title must be at most %d characters", MaxTitleLength)),
		),
	),
	KindCard: validation.Map(
		validation.Key("content",
			validation.RuneLength(0, MaxContentLength).Error(fmt.Sprintf("content must be at most %d characters", MaxContentLength)),
		),
	),
	KindSettings: validation.Map(
		validation.Key("visibility",
			validation.Required,
			validation.In(string(model.VisibilityPrivate), string(model.VisibilityPublic), string(model.VisibilityOpen)).
				Error("visibility must be private, public or open"),
		),
		validation.Key("likes_enabled", validation.Required, validation.In(boolValues...)),
		validation.Key("voting_enabled", validation.Required, validation.In(boolValues...)),
		validation.Key("cards_hidden", validation.Required, validation.In(boolValues...)),
		validation.Key("votes_per_user",
			validation.Required,
			is.Int.Error("votes per user must be a number"),
			validation.By(votesInRange),
		),
	),
}

func votesInRange(value interface{}) error {
	s, _ := value.(string)
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil // reported by is.Int
	}
	if n < 0 || n > MaxVotesPerUser {
		return fmt.Errorf("votes per user must be between 0 and %d", MaxVotesPerUser)
	}
	return nil
}

// Validator implements the form validation capability.
type Validator struct{}

func New() *Validator { return &Validator{} }

// Validate merges patch over current, trims whitespace and checks the result
// against the rules for kind. On failure the returned error is Errors.
func (v *Validator) Validate(kind Kind, current, patch map[string]string) (map[string]string, error) {
	rule, ok := rules[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	merged := make(map[string]string, len(current)+len(patch))
	for k, val := range current {
		merged[k] = val
	}
	for k, val := range patch {
		if _, known := current[k]; !known && len(current) > 0 {
			return nil, Errors{k: "unknown field"}
		}
		merged[k] = val
	}
	for k, val := range merged {
		if kind != KindCard {
			val = strings.TrimSpace(val)
		}
		merged[k] = strings.ToValidUTF8(val, "")
	}

	if err := validation.Validate(merged, rule); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			out := make(Errors, len(verrs))
			for field, ferr := range verrs {
				out[field] = ferr.Error()
			}
			return nil, out
		}
		return nil, err
	}
	return merged, nil
}

// SettingsValues renders settings as form values.
func SettingsValues(s model.Settings) map[string]string {
	return map[string]string{
		"visibility":     string(s.Visibility),
		"likes_enabled":  strconv.FormatBool(s.LikesEnabled),
		"voting_enabled": strconv.FormatBool(s.VotingEnabled),
		"cards_hidden":   strconv.FormatBool(s.CardsHidden),
		"votes_per_user": strconv.Itoa(s.VotesPerUser),
	}
}

// SettingsFrom converts values returned by Validate into settings.
func SettingsFrom(values map[string]string) model.Settings {
	votes, _ := strconv.Atoi(values["votes_per_user"])
	return model.Settings{
		Visibility:    model.Visibility(values["visibility"]),
		LikesEnabled:  values["likes_enabled"] == "true",
		VotingEnabled: values["voting_enabled"] == "true",
		CardsHidden:   values["cards_hidden"] == "true",
		VotesPerUser:  votes,
	}
}
