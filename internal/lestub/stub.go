// Package lestub holds the embedded LE stub templates elf2le writes ahead
// of the generated LE header, one per supported protected-mode loader, and
// picks between them by the loader version the caller targets.
package lestub

import (
	"embed"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

//go:embed assets
var assets embed.FS

// Profile is one named stub template, gated by the range of loader
// versions it's compatible with.
type Profile struct {
	Name       string
	Constraint string
	asset      string
}

var profiles = []Profile{
	{Name: "dos4gw", Constraint: ">= 1.9, < 3.0", asset: "assets/dos4gw.bin"},
	{Name: "pmodew", Constraint: ">= 1.0", asset: "assets/pmodew.bin"},
	{Name: "os2", Constraint: ">= 2.0", asset: "assets/os2.bin"},
}

var ErrUnknownProfile = errors.New("unknown stub profile")

// Load returns the stub template bytes for the named profile. If
// loaderVersion is non-empty, it is checked against the profile's version
// constraint and an error is returned on mismatch, so a caller targeting
// "dos4gw 3.1" finds out before producing an executable that loader can't
// run.
func Load(name, loaderVersion string) ([]byte, error) {
	for _, profile := range profiles {
		if profile.Name != name {
			continue
		}

		if loaderVersion != "" {
			if err := checkConstraint(profile, loaderVersion); err != nil {
				return nil, err
			}
		}

		data, err := assets.ReadFile(profile.asset)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded stub %q: %w", profile.asset, err)
		}

		return data, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}

func checkConstraint(profile Profile, loaderVersion string) error {
	constraint, err := semver.NewConstraint(profile.Constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint for stub profile %q: %w", profile.Name, err)
	}

	version, err := semver.NewVersion(loaderVersion)
	if err != nil {
		return fmt.Errorf("invalid loader version %q: %w", loaderVersion, err)
	}

	if !constraint.Check(version) {
		return fmt.Errorf("stub profile %q requires loader version %s, got %s", profile.Name, profile.Constraint, loaderVersion)
	}

	return nil
}

// Names returns the names of every registered stub profile, for CLI help
// text and validation.
func Names() []string {
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}

	return names
}
