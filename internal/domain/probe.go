package domain

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

type ProbeType string

const (
	ProbeTypeBinaryChoice ProbeType = "binary_choice"
	ProbeTypeSlider       ProbeType = "slider"
	ProbeTypeReflection   ProbeType = "reflection"
	ProbeTypeConfirmation ProbeType = "confirmation"
)

func (t ProbeType) IsValid() bool {
	switch t {
	case ProbeTypeBinaryChoice, ProbeTypeSlider, ProbeTypeReflection, ProbeTypeConfirmation:
		return true
	}
	return false
}

// Response keys produced by ProbeResponse.ResponseKey.
const (
	ResponseKeyYes     = "yes"
	ResponseKeyNo      = "no"
	ResponseKeyLow     = "low"
	ResponseKeyMid     = "mid"
	ResponseKeyHigh    = "high"
	ResponseKeyDefault = "default"
)

// Slider bounds and bucket edges.
const (
	SliderMin     = 0.0
	SliderMax     = 10.0
	sliderLowMax  = 3.0
	sliderMidMax  = 7.0
	firstOptionID = "0"
)

// IsAffirmativeKey reports whether a response key leans towards the probed candidate.
func IsAffirmativeKey(key string) bool {
	switch key {
	case ResponseKeyYes, ResponseKeyHigh, firstOptionID:
		return true
	}
	return false
}

// ProbeSource tells whether a probe's content came from a provider or from the static templates.
type ProbeSource string

const (
	ProbeSourceLLM      ProbeSource = "llm"
	ProbeSourceTemplate ProbeSource = "template"
	ProbeSourceFallback ProbeSource = "fallback"
)

// ProbePacket is one question sent to the user about a hypothesis. Content is fixed once created;
// only AnsweredAt changes.
type ProbePacket struct {
	ID                 string                        `json:"id"`
	HypothesisID       string                        `json:"hypothesis_id"`
	UserID             string                        `json:"user_id"`
	SessionID          string                        `json:"session_id,omitempty"`
	Field              string                        `json:"field"`
	Module             string                        `json:"module"`
	ProbeType          ProbeType                     `json:"probe_type"`
	Question           string                        `json:"question"`
	Options            []string                      `json:"options,omitempty"`
	StrategyUsed       string                        `json:"strategy_used"`
	ConfidenceMappings map[string]map[string]float64 `json:"confidence_mappings,omitempty"`
	AnalysisHints      map[string]any                `json:"analysis_hints,omitempty"`
	Source             ProbeSource                   `json:"source"`
	CreatedAt          time.Time                     `json:"created_at"`
	ExpiresAt          *time.Time                    `json:"expires_at,omitempty"`
	AnsweredAt         *time.Time                    `json:"answered_at,omitempty"`
}

// Expired reports whether an unanswered probe is past its expiry.
func (p *ProbePacket) Expired(now time.Time) bool {
	return p.AnsweredAt == nil && p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

func (p *ProbePacket) Answered() bool {
	return p.AnsweredAt != nil
}

func (p *ProbePacket) Clone() *ProbePacket {
	c := *p
	c.Options = append([]string(nil), p.Options...)
	if p.ConfidenceMappings != nil {
		c.ConfidenceMappings = make(map[string]map[string]float64, len(p.ConfidenceMappings))
		for k, m := range p.ConfidenceMappings {
			inner := make(map[string]float64, len(m))
			for v, d := range m {
				inner[v] = d
			}
			c.ConfidenceMappings[k] = inner
		}
	}
	if p.AnalysisHints != nil {
		c.AnalysisHints = make(map[string]any, len(p.AnalysisHints))
		for k, v := range p.AnalysisHints {
			c.AnalysisHints[k] = v
		}
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		c.ExpiresAt = &t
	}
	if p.AnsweredAt != nil {
		t := *p.AnsweredAt
		c.AnsweredAt = &t
	}
	return &c
}

// ProbeResponse is the user's answer. Exactly one payload field is set, matching ResponseType.
type ProbeResponse struct {
	ProbeID        string    `json:"probe_id"`
	ResponseType   ProbeType `json:"response_type"`
	SelectedOption *int      `json:"selected_option,omitempty"`
	SliderValue    *float64  `json:"slider_value,omitempty"`
	ReflectionText string    `json:"reflection_text,omitempty"`
	Confirmed      *bool     `json:"confirmed,omitempty"`
	RespondedAt    time.Time `json:"responded_at"`
}

var (
	ErrResponseTypeInvalid = errors.New("invalid response_type")
	ErrResponsePayload     = errors.New("response must carry exactly one payload matching its type")
	ErrSliderOutOfRange    = errors.New("slider_value must be within [0,10]")
	ErrOptionOutOfRange    = errors.New("selected_option is out of range")
)

// Validate checks that the payload matches the response type.
func (r *ProbeResponse) Validate() error {
	if !r.ResponseType.IsValid() {
		return ErrResponseTypeInvalid
	}

	set := 0
	if r.SelectedOption != nil {
		set++
	}
	if r.SliderValue != nil {
		set++
	}
	if r.ReflectionText != "" {
		set++
	}
	if r.Confirmed != nil {
		set++
	}
	if set != 1 {
		return ErrResponsePayload
	}

	switch r.ResponseType {
	case ProbeTypeBinaryChoice:
		if r.SelectedOption == nil {
			return ErrResponsePayload
		}
		if *r.SelectedOption < 0 {
			return ErrOptionOutOfRange
		}
	case ProbeTypeSlider:
		if r.SliderValue == nil {
			return ErrResponsePayload
		}
		if *r.SliderValue < SliderMin || *r.SliderValue > SliderMax {
			return ErrSliderOutOfRange
		}
	case ProbeTypeReflection:
		if r.ReflectionText == "" {
			return ErrResponsePayload
		}
	case ProbeTypeConfirmation:
		if r.Confirmed == nil {
			return ErrResponsePayload
		}
	}
	return nil
}

// ValidateAgainst checks the response against the probe it answers.
func (r *ProbeResponse) ValidateAgainst(p *ProbePacket) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ResponseType != p.ProbeType {
		return fmt.Errorf("%w: probe is %s, response is %s", ErrResponseTypeInvalid, p.ProbeType, r.ResponseType)
	}
	if r.SelectedOption != nil && len(p.Options) > 0 && *r.SelectedOption >= len(p.Options) {
		return ErrOptionOutOfRange
	}
	return nil
}

// ResponseKey maps the answer onto a key of the probe's confidence mapping table.
func (r *ProbeResponse) ResponseKey() string {
	switch r.ResponseType {
	case ProbeTypeBinaryChoice:
		if r.SelectedOption != nil {
			return strconv.Itoa(*r.SelectedOption)
		}
	case ProbeTypeSlider:
		if r.SliderValue != nil {
			switch v := *r.SliderValue; {
			case v <= sliderLowMax:
				return ResponseKeyLow
			case v <= sliderMidMax:
				return ResponseKeyMid
			default:
				return ResponseKeyHigh
			}
		}
	case ProbeTypeConfirmation:
		if r.Confirmed != nil {
			if *r.Confirmed {
				return ResponseKeyYes
			}
			return ResponseKeyNo
		}
	}
	return ResponseKeyDefault
}
