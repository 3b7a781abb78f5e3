package main

import (
	"log"
	"net/url"
	"strconv"
	"strings"
)

func firstElementOf(s []string) string {
	// return first element of slice, or blank
	val := ""

	if len(s) > 0 {
		val = s[0]
	}

	return val
}

func sliceContainsString(haystack []string, needle string, insensitive bool) bool {
	if insensitive == true {
		needle = strings.ToLower(needle)
	}

	for _, item := range haystack {
		if insensitive == true {
			item = strings.ToLower(item)
		}

		if item == needle {
			return true
		}
	}

	return false
}

func nonemptyValues(val []string) []string {
	res := []string{}

	for _, s := range val {
		if s != "" {
			res = append(res, s)
		}
	}

	return res
}

func restrictValue(field string, val int, min int, fallback int) int {
	// default, if requested value isn't large enough
	res := fallback

	if val >= min {
		res = val
	} else {
		log.Printf(`value for "%s" is less than the minimum allowed value %d; defaulting to %d`, field, min, fallback)
	}

	return res
}

func integerWithMinimum(str string, min int) int {
	val, err := strconv.Atoi(str)

	// fallback for invalid or out-of-range values
	if err != nil || val < min {
		val = min
	}

	return val
}

func isValidURL(str string) bool {
	u, err := url.Parse(str)

	return err == nil && u.Scheme != "" && u.Host != ""
}
