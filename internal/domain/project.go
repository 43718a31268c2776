package domain

import "regexp"

var projectKeyRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidProjectKey проверяет ключ проекта трекера: буква, затем буквы, цифры или "_".
func ValidProjectKey(key string) bool {
	return projectKeyRegex.MatchString(key)
}
