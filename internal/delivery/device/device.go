// Package device turns client signals into a device class. Classification
// has no side effects; callers decide what a class means.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

type Class string

const (
	ClassMobile  Class = "mobile"
	ClassDesktop Class = "desktop"
)

// Classify reports whether the client is a mobile device. An explicit
// Sec-CH-UA-Mobile hint wins over the user agent.
func Classify(userAgent, chMobile string) Class {
	switch strings.TrimSpace(chMobile) {
	case "?1":
		return ClassMobile
	case "?0":
		return ClassDesktop
	}
	if userAgent == "" {
		return ClassDesktop
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return ClassDesktop
	}
	if ua.Mobile() {
		return ClassMobile
	}
	return ClassDesktop
}

// DisplayName renders a short label such as "Chrome on Intel Mac OS X 10_15_7"
// for logs and audit trails.
func DisplayName(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OS()
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
