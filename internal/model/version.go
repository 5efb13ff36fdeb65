// Package model checks the local model version against the latest one and
// downloads updates. Version lookup and download are stubbed behind
// interfaces.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// VersionFile is the name of the version record inside the model dir.
const VersionFile = "version.json"

// ErrNoLocalVersion means the version file is missing.
var ErrNoLocalVersion = errors.New("no local model version")

// VersionInfo describes one published model.
type VersionInfo struct {
	Version   string `json:"version" validate:"required"`
	ModelName string `json:"model_name" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate reports missing fields by their JSON names.
func (v VersionInfo) Validate() error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return fmt.Errorf("version info missing %s", strings.Join(missing, ", "))
}

// Same reports whether both describe the same version.
func (v VersionInfo) Same(other VersionInfo) bool {
	return v.Version == other.Version
}

// ReadVersion loads and validates the version file at path.
func ReadVersion(path string) (VersionInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return VersionInfo{}, ErrNoLocalVersion
		}
		return VersionInfo{}, fmt.Errorf("read version file: %w", err)
	}

	var info VersionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return VersionInfo{}, fmt.Errorf("parse version file: %w", err)
	}
	if err := info.Validate(); err != nil {
		return VersionInfo{}, err
	}
	return info, nil
}

// WriteVersion stores info at path atomically.
func WriteVersion(path string, info VersionInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "    ")
	if err != nil {
		return fmt.Errorf("encode version: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".version-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write version: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename version file: %w", err)
	}
	return nil
}
