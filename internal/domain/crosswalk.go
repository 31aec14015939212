package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Location is the identity key of a crosswalk.
type Location struct {
	City   string `json:"city"`
	Street string `json:"street"`
	Number string `json:"number"`
}

// Normalize trims every field.
func (l Location) Normalize() Location {
	return Location{
		City:   strings.TrimSpace(l.City),
		Street: strings.TrimSpace(l.Street),
		Number: strings.TrimSpace(l.Number),
	}
}

// IsEmpty reports whether no field is populated.
func (l Location) IsEmpty() bool {
	n := l.Normalize()
	return n.City == "" && n.Street == "" && n.Number == ""
}

// Validate requires city, street and number.
func (l Location) Validate() error {
	n := l.Normalize()
	var missing []string
	if n.City == "" {
		missing = append(missing, "location.city")
	}
	if n.Street == "" {
		missing = append(missing, "location.street")
	}
	if n.Number == "" {
		missing = append(missing, "location.number")
	}
	if len(missing) > 0 {
		return newValidationError("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// Key is a stable string form used for locking.
func (l Location) Key() string {
	n := l.Normalize()
	return strings.ToLower(n.City) + "|" + strings.ToLower(n.Street) + "|" + strings.ToLower(n.Number)
}

type LEDStatus string

const (
	LEDOperational LEDStatus = "operational"
	LEDMalfunction LEDStatus = "malfunction"
	LEDDisabled    LEDStatus = "disabled"
)

type ActivationMethod string

const (
	MethodHTTPPost  ActivationMethod = "http_post"
	MethodHTTPGet   ActivationMethod = "http_get"
	MethodMQTT      ActivationMethod = "mqtt"
	MethodWebSocket ActivationMethod = "websocket"
)

type Pattern string

const (
	PatternWarning Pattern = "warning"
	PatternDanger  Pattern = "danger"
	PatternSafe    Pattern = "safe"
)

func ParsePattern(s string) (Pattern, error) {
	switch p := Pattern(strings.ToLower(strings.TrimSpace(s))); p {
	case PatternWarning, PatternDanger, PatternSafe:
		return p, nil
	case "":
		return PatternWarning, nil
	}
	return "", newValidationError(fmt.Sprintf("invalid pattern %q (expected warning, danger or safe)", s))
}

type PatternConfig struct {
	Color     string  `json:"color"`
	FlashRate float64 `json:"flashRate"` // flashes per second, 0 = solid
	Duration  int     `json:"duration"`  // seconds
}

// DefaultPatterns applied when a LED system is configured without patterns.
func DefaultPatterns() map[Pattern]PatternConfig {
	return map[Pattern]PatternConfig{
		PatternWarning: {Color: "yellow", FlashRate: 2, Duration: 10},
		PatternDanger:  {Color: "red", FlashRate: 4, Duration: 15},
		PatternSafe:    {Color: "green", FlashRate: 0, Duration: 5},
	}
}

type LEDAuthentication struct {
	APIKey string `json:"apiKey,omitempty"`
	Token  string `json:"token,omitempty"`
}

// LastActivation is written only by the actuation dispatcher.
type LastActivation struct {
	Timestamp      time.Time `json:"timestamp"`
	Pattern        Pattern   `json:"pattern"`
	Success        bool      `json:"success"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
}

// LEDSystem is the actuation configuration of a crosswalk (JSONB column).
type LEDSystem struct {
	ControlURL       string                    `json:"controlUrl,omitempty"`
	DeactivateURL    string                    `json:"deactivateUrl,omitempty"`
	Status           LEDStatus                 `json:"status"`
	ActivationMethod ActivationMethod          `json:"activationMethod"`
	Authentication   *LEDAuthentication        `json:"authentication,omitempty"`
	Patterns         map[Pattern]PatternConfig `json:"patterns,omitempty"`
	LastActivation   *LastActivation           `json:"lastActivation,omitempty"`
}

// ApplyDefaults fills status, method and patterns.
func (s *LEDSystem) ApplyDefaults() {
	if s.Status == "" {
		s.Status = LEDOperational
	}
	if s.ActivationMethod == "" {
		s.ActivationMethod = MethodHTTPPost
	}
	if len(s.Patterns) == 0 {
		s.Patterns = DefaultPatterns()
	}
}

// Validate checks enums and URL schemes. Unknown activation methods are
// accepted here and rejected per call by the dispatcher.
func (s *LEDSystem) Validate() error {
	switch s.Status {
	case LEDOperational, LEDMalfunction, LEDDisabled:
	default:
		return newValidationError(fmt.Sprintf("invalid ledSystem.status %q", s.Status))
	}
	for name, raw := range map[string]string{"ledSystem.controlUrl": s.ControlURL, "ledSystem.deactivateUrl": s.DeactivateURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return newValidationError(fmt.Sprintf("%s must be an http(s) URL", name))
		}
	}
	return nil
}

// Crosswalk is the location aggregate (crosswalks table). Location is unique.
type Crosswalk struct {
	ID        string     `json:"id" db:"crosswalk_id"`
	Location  Location   `json:"location"`
	CameraID  *string    `json:"cameraId" db:"camera_id"`
	LEDID     *string    `json:"ledId" db:"led_id"`
	LEDSystem *LEDSystem `json:"ledSystem,omitempty" db:"led_system"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// CrosswalkView is a crosswalk with camera and LED dereferenced.
type CrosswalkView struct {
	*Crosswalk
	Camera *Camera `json:"camera,omitempty"`
	LED    *LED    `json:"led,omitempty"`
}

// CrosswalkPatch operator update. Nil means unchanged; an empty string for
// CameraID/LEDID unlinks.
type CrosswalkPatch struct {
	Location  *Location
	CameraID  *string
	LEDID     *string
	LEDSystem *LEDSystem
}

type CrosswalkStats struct {
	Total int `json:"total"`
}
