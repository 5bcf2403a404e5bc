package config

import (
	"fmt"
	"reflect"
	"strings"
)

// RequiredFields reports every listed field that holds its zero value.
// Field names use dot notation for nested structs ("Audit.DSN").
func RequiredFields(fields ...string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		var missing []string
		for _, name := range fields {
			field, err := lookupField(config, name)
			if err != nil {
				return err
			}
			if field.IsZero() {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("required fields are missing: %s", strings.Join(missing, ", "))
		}
		return nil
	})
}

// RangeValidator checks that a numeric field lies in [min, max].
func RangeValidator(fieldName string, min, max float64) Validator {
	return ValidatorFunc(func(config interface{}) error {
		field, err := lookupField(config, fieldName)
		if err != nil {
			return err
		}

		var n float64
		switch {
		case field.CanInt():
			n = float64(field.Int())
		case field.CanUint():
			n = float64(field.Uint())
		case field.CanFloat():
			n = field.Float()
		default:
			return fmt.Errorf("field %s is not numeric", fieldName)
		}

		if n < min || n > max {
			return fmt.Errorf("field %s value %v is out of range [%v, %v]", fieldName, n, min, max)
		}
		return nil
	})
}

// StringLengthValidator checks the byte length of a string field.
func StringLengthValidator(fieldName string, minLen, maxLen int) Validator {
	return ValidatorFunc(func(config interface{}) error {
		s, err := stringField(config, fieldName)
		if err != nil {
			return err
		}
		if len(s) < minLen || len(s) > maxLen {
			return fmt.Errorf("field %s length %d is out of range [%d, %d]", fieldName, len(s), minLen, maxLen)
		}
		return nil
	})
}

// OneOfValidator checks that a field equals one of allowed.
func OneOfValidator(fieldName string, allowed ...interface{}) Validator {
	return ValidatorFunc(func(config interface{}) error {
		field, err := lookupField(config, fieldName)
		if err != nil {
			return err
		}
		value := field.Interface()
		for _, a := range allowed {
			if reflect.DeepEqual(value, a) {
				return nil
			}
		}
		return fmt.Errorf("field %s value %v is not one of allowed values: %v", fieldName, value, allowed)
	})
}

// DurationValidator checks that a string field is empty or a non-negative
// duration accepted by ParseDuration.
func DurationValidator(fieldName string) Validator {
	return ValidatorFunc(func(config interface{}) error {
		s, err := stringField(config, fieldName)
		if err != nil {
			return err
		}
		if _, err := ParseDuration(s); err != nil {
			return fmt.Errorf("field %s: %w", fieldName, err)
		}
		return nil
	})
}

func stringField(config interface{}, fieldName string) (string, error) {
	field, err := lookupField(config, fieldName)
	if err != nil {
		return "", err
	}
	if field.Kind() != reflect.String {
		return "", fmt.Errorf("field %s is not a string", fieldName)
	}
	return field.String(), nil
}

// lookupField walks a dotted field path through config, following pointers.
func lookupField(config interface{}, path string) (reflect.Value, error) {
	current := reflect.ValueOf(config)
	for _, part := range strings.Split(path, ".") {
		for current.Kind() == reflect.Ptr {
			if current.IsNil() {
				return reflect.Value{}, fmt.Errorf("field %s not found: nil pointer", path)
			}
			current = current.Elem()
		}
		if current.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field %s not found: config must be a struct", path)
		}
		current = current.FieldByName(part)
		if !current.IsValid() {
			return reflect.Value{}, fmt.Errorf("field %s not found", path)
		}
	}
	return current, nil
}
