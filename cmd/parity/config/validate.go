// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidDescriptor wraps every descriptor validation failure.
var ErrInvalidDescriptor = errors.New("invalid project descriptor")

var dnsLabelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// validate is the shared validator with the dnslabel rule registered and
// field names reported by their YAML keys.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("dnslabel", validateDNSLabel)
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// validateDNSLabel accepts a single lowercase RFC 1123 label.
func validateDNSLabel(fl validator.FieldLevel) bool {
	return dnsLabelPattern.MatchString(fl.Field().String())
}

// reservedServiceNames are taken by the proxy's own routers or by the
// hostnames those routers answer on. A service with one of these names
// would shadow or duplicate a fixed route.
var reservedServiceNames = map[string]string{
	"dashboard":       "the proxy dashboard router",
	"supabase-api":    "the Supabase API router",
	"supabase-studio": "the Supabase Studio router",
	"traefik":         "the proxy dashboard host traefik.<domain>",
	"api":             "the Supabase API host api.<domain>",
	"studio":          "the Supabase Studio host studio.<domain>",
}

// IsReservedServiceName reports whether name is used by a fixed route.
func IsReservedServiceName(name string) bool {
	_, ok := reservedServiceNames[name]
	return ok
}

// Validate checks field rules and cross-field invariants.
//
// # Description
//
// Field rules come from struct tags. Cross-field rules are checked here:
//
//   - service names are unique and not reserved by a fixed route
//   - service ports are distinct
//   - target names are unique
//
// # Outputs
//
//   - error: Wraps ErrInvalidDescriptor with every problem found, or nil.
func (d *ProjectDescriptor) Validate() error {
	var problems []string

	if err := validate.Struct(d); err != nil {
		problems = append(problems, describeValidation(err)...)
	}

	names := make(map[string]int)
	ports := make(map[int]string)
	for i, s := range d.Services {
		if use, ok := reservedServiceNames[s.Name]; ok {
			problems = append(problems, fmt.Sprintf("services[%d].name: %q is reserved for %s; rename the service", i, s.Name, use))
		}
		if prev, ok := names[s.Name]; ok && s.Name != "" {
			problems = append(problems, fmt.Sprintf("services[%d].name: %q duplicates services[%d]", i, s.Name, prev))
		} else {
			names[s.Name] = i
		}
		if owner, ok := ports[s.Port]; ok && s.Port != 0 {
			problems = append(problems, fmt.Sprintf("services[%d].port: %d is already used by %q", i, s.Port, owner))
		} else {
			ports[s.Port] = s.Name
		}
	}

	targets := make(map[string]bool)
	for i, t := range d.Targets {
		if targets[t.Name] {
			problems = append(problems, fmt.Sprintf("targets[%d].name: %q is defined more than once", i, t.Name))
		}
		targets[t.Name] = true
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n  - %s", ErrInvalidDescriptor, strings.Join(problems, "\n  - "))
}

// ValidateTarget checks a single target against the field rules.
func ValidateTarget(t DeploymentTarget) error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDescriptor, strings.Join(describeValidation(err), "; "))
	}
	return nil
}

// ValidateSettings checks user settings.
func ValidateSettings(s Settings) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %s", strings.Join(describeValidation(err), "; "))
	}
	return nil
}

// ValidateEmail reports whether s is an acceptable operator email.
func ValidateEmail(s string) error {
	if err := validate.Var(s, "required,email"); err != nil {
		return fmt.Errorf("%q is not a valid email address", s)
	}
	return nil
}

// ValidateDomain reports whether s is a fully qualified domain name.
func ValidateDomain(s string) error {
	if err := validate.Var(s, "required,fqdn"); err != nil {
		return fmt.Errorf("%q is not a fully qualified domain name", s)
	}
	return nil
}

// describeValidation renders validator errors as "path: problem" lines.
func describeValidation(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		out = append(out, fmt.Sprintf("%s: %s", path, describeTag(fe)))
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "dnslabel":
		return fmt.Sprintf("%q must be lowercase letters, digits, and hyphens", fe.Value())
	case "fqdn":
		return fmt.Sprintf("%q is not a fully qualified domain name", fe.Value())
	case "min", "max":
		return "must be between 1 and 65535"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "ne":
		return fmt.Sprintf("%q is reserved", fe.Value())
	case "email":
		return fmt.Sprintf("%q is not a valid email address", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
