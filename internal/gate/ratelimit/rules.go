// Package ratelimit admits or rejects requests per client IP and route
// class, and slows down repeated hits on sensitive routes.
package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Class groups routes that share a budget.
type Class string

const (
	ClassGeneral           Class = "general"
	ClassAuth              Class = "auth"
	ClassPasswordReset     Class = "password-reset"
	ClassEmailVerification Class = "email-verification"
	ClassEventRegistration Class = "event-registration"
)

// Classes lists every known class.
func Classes() []Class {
	return []Class{ClassGeneral, ClassAuth, ClassPasswordReset, ClassEmailVerification, ClassEventRegistration}
}

// envPrefix turns "password-reset" into "PASSWORD_RESET".
func (c Class) envPrefix() string {
	return strings.ToUpper(strings.ReplaceAll(string(c), "-", "_"))
}

// Rule is a fixed-window budget.
type Rule struct {
	// Limit is the number of requests allowed per window.
	Limit int64
	// Window is the length of the fixed window.
	Window time.Duration
	// Message is returned to callers that exceed the budget.
	Message string
}

// DefaultRules returns the built-in budgets for every class.
func DefaultRules() map[Class]Rule {
	return map[Class]Rule{
		ClassGeneral: {
			Limit:   100,
			Window:  15 * time.Minute,
			Message: "Too many requests from this IP, please try again later.",
		},
		ClassAuth: {
			Limit:   5,
			Window:  15 * time.Minute,
			Message: "Too many authentication attempts, please try again after 15 minutes.",
		},
		ClassPasswordReset: {
			Limit:   3,
			Window:  time.Hour,
			Message: "Too many password reset requests, please try again after an hour.",
		},
		ClassEmailVerification: {
			Limit:   3,
			Window:  time.Hour,
			Message: "Too many verification emails requested, please try again after an hour.",
		},
		ClassEventRegistration: {
			Limit:   10,
			Window:  time.Hour,
			Message: "Too many registration attempts, please try again later.",
		},
	}
}

// RulesFromEnv returns DefaultRules with any RATELIMIT_* overrides applied.
func RulesFromEnv() map[Class]Rule {
	rules := DefaultRules()
	for class, rule := range rules {
		rules[class] = ParseRuleFromEnv(class, rule)
	}
	return rules
}

// ParseRuleFromEnv reads overrides for one class from the environment.
// Variables follow the pattern RATELIMIT_{CLASS}_{FIELD}, for example
// RATELIMIT_PASSWORD_RESET_REQUESTS and RATELIMIT_PASSWORD_RESET_WINDOW_SEC.
// Invalid or non-positive values are ignored.
func ParseRuleFromEnv(class Class, def Rule) Rule {
	rule := def
	prefix := "RATELIMIT_" + class.envPrefix()

	if val := os.Getenv(prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.ParseInt(val, 10, 64); err == nil && requests > 0 {
			rule.Limit = requests
		}
	}

	if val := os.Getenv(prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			rule.Window = time.Duration(windowSec) * time.Second
		}
	}

	return rule
}

// SpeedRule describes the progressive delay applied to sensitive routes.
type SpeedRule struct {
	// DelayAfter requests within Window pass without delay.
	DelayAfter int64
	// Step is added for every request past DelayAfter.
	Step time.Duration
	// MaxDelay caps the delay.
	MaxDelay time.Duration
	Window   time.Duration
}

func DefaultSpeedRule() SpeedRule {
	return SpeedRule{
		DelayAfter: 2,
		Step:       500 * time.Millisecond,
		MaxDelay:   20 * time.Second,
		Window:     15 * time.Minute,
	}
}

// SpeedRuleFromEnv applies SPEEDLIMIT_DELAY_AFTER, SPEEDLIMIT_STEP_MS,
// SPEEDLIMIT_MAX_DELAY_MS and SPEEDLIMIT_WINDOW_SEC to DefaultSpeedRule.
func SpeedRuleFromEnv() SpeedRule {
	rule := DefaultSpeedRule()

	if v, ok := positiveEnv("SPEEDLIMIT_DELAY_AFTER"); ok {
		rule.DelayAfter = v
	}
	if v, ok := positiveEnv("SPEEDLIMIT_STEP_MS"); ok {
		rule.Step = time.Duration(v) * time.Millisecond
	}
	if v, ok := positiveEnv("SPEEDLIMIT_MAX_DELAY_MS"); ok {
		rule.MaxDelay = time.Duration(v) * time.Millisecond
	}
	if v, ok := positiveEnv("SPEEDLIMIT_WINDOW_SEC"); ok {
		rule.Window = time.Duration(v) * time.Second
	}

	return rule
}

// Delay is the wait owed by the count-th request in the window.
func (s SpeedRule) Delay(count int64) time.Duration {
	over := count - s.DelayAfter
	if over <= 0 || s.Step <= 0 {
		return 0
	}
	if s.MaxDelay > 0 && over >= int64(s.MaxDelay/s.Step) {
		return s.MaxDelay
	}
	return time.Duration(over) * s.Step
}

func positiveEnv(key string) (int64, bool) {
	val := os.Getenv(key)
	if val == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
