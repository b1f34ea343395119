// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"
	"time"
)

var contactNumberRe = regexp.MustCompile(`^01[0-9]{9}$`)

// IsValidContactNumber проверяет, что контактный номер состоит из 11 цифр и начинается с 01.
func IsValidContactNumber(number string) bool {
	return contactNumberRe.MatchString(number)
}

// IsValidDate проверяет, что дата задана строкой в формате YYYY-MM-DD.
func IsValidDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}
