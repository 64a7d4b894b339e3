package alert

import (
	"net"
	"strings"
	"time"
)

// Severity of an alert.
type Severity string

// Severities.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Status of an alert. Only ACTIVE is set here; the others belong to the
// operator workflow.
type Status string

// Statuses.
const (
	StatusActive       Status = "ACTIVE"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResolved     Status = "RESOLVED"
)

// Alert types.
const (
	TypeAuthFailureSpike    = "AUTH_FAILURE_SPIKE"
	TypeSuspiciousIP        = "SUSPICIOUS_IP_ACTIVITY"
	TypeSanitizationAnomaly = "SANITIZATION_ANOMALY"
	TypeJWTAnomaly          = "JWT_ANOMALY"
)

// Alert is a security alert event.
type Alert struct {
	ID          string                 `json:"alertId"`
	Type        string                 `json:"alertType"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Severity    Severity               `json:"severity"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"alertData,omitempty"`
	Status      Status                 `json:"status"`
}

// MaskIP hides part of an address for alert payloads. IPv4 addresses keep
// all but the third octet; other values longer than eight characters keep
// their first and last four characters.
func MaskIP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil && strings.Count(ip, ".") == 3 {
		parts := strings.Split(ip, ".")
		return parts[0] + "." + parts[1] + ".***." + parts[3]
	}
	if len(ip) > 8 {
		return ip[:4] + "****" + ip[len(ip)-4:]
	}
	return "****"
}
