package device

import (
	"strings"
	"time"
)

type DeviceClass string

const (
	DeviceClassDesktop DeviceClass = "Desktop"
	DeviceClassMobile  DeviceClass = "Mobile"
)

type Status string

const StatusApproved Status = "approved"

// DeviceRecord is one approved device in an account's registry.
type DeviceRecord struct {
	ID          string      `json:"id"`
	UserAgent   string      `json:"agent"`
	IP          string      `json:"ip_address"`
	FirstSeen   time.Time   `json:"time"`
	DeviceClass DeviceClass `json:"device_type"`
	Status      Status      `json:"status"`
	Country     string      `json:"country,omitempty"`
}

var mobileKeywords = []string{
	"mobile", "android", "silk/", "kindle", "blackberry", "opera mini", "opera mobi",
	"iphone", "ipad", "ipod", "windows phone",
}

// ClassifyUserAgent reports Mobile for phones and tablets and Desktop for everything else.
func ClassifyUserAgent(userAgent string) DeviceClass {
	ua := strings.ToLower(userAgent)
	for _, keyword := range mobileKeywords {
		if strings.Contains(ua, keyword) {
			return DeviceClassMobile
		}
	}
	return DeviceClassDesktop
}

// IndexOf returns the position of deviceID in records, or -1.
func IndexOf(records []DeviceRecord, deviceID string) int {
	for i, r := range records {
		if r.ID == deviceID {
			return i
		}
	}
	return -1
}
