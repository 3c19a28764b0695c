package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/erp/voucher-export/internal/domain/voucher"
	"gopkg.in/yaml.v3"
)

// LoadAccountPlan returns the built-in account plan overridden by the YAML file
// at path. An empty path returns the built-in plan.
func LoadAccountPlan(path string) (voucher.AccountPlan, error) {
	plan := voucher.DefaultAccountPlan()
	if path == "" {
		return plan, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return voucher.AccountPlan{}, fmt.Errorf("read accounts file: %w", err)
	}
	return ParseAccountPlan(data)
}

// ParseAccountPlan applies a YAML account plan on top of the built-in plan.
// Unknown keys are rejected so a typo never silently falls back to a default account.
func ParseAccountPlan(data []byte) (voucher.AccountPlan, error) {
	var override voucher.AccountPlan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&override); err != nil && !errors.Is(err, io.EOF) {
		return voucher.AccountPlan{}, fmt.Errorf("parse accounts file: %w", err)
	}

	plan := voucher.DefaultAccountPlan().Merge(override)
	if err := plan.Validate(); err != nil {
		return voucher.AccountPlan{}, err
	}
	return plan, nil
}
