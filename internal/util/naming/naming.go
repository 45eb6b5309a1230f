package naming

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Object storage layout.
const (
	SnapshotPrefix  = "backups/snapshots/"
	LatestSnapshot  = "backups/latest.db"
	CertificateRoot = "certs/"
)

// SnapshotTimeFormat is the UTC timestamp embedded in snapshot keys.
const SnapshotTimeFormat = "20060102T150405.000Z"

// legacySnapshotTimeFormat is the whole-second format of older snapshots.
const legacySnapshotTimeFormat = "20060102T150405Z"

// Volume layout used by the restore helper.
const (
	RestoreMountPath = "/data"
	InitMarker       = ".webui-gke-initialized"
)

// SnapshotKey returns the rolling key for a snapshot taken at ts.
func SnapshotKey(ts time.Time) string {
	return fmt.Sprintf("%swebui-%s.db", SnapshotPrefix, ts.UTC().Format(SnapshotTimeFormat))
}

// ParseSnapshotKey extracts the timestamp from a rolling snapshot key. Keys
// with whole-second timestamps are accepted too.
func ParseSnapshotKey(key string) (time.Time, bool) {
	name := strings.TrimPrefix(key, SnapshotPrefix)
	if name == key || !strings.HasPrefix(name, "webui-") || !strings.HasSuffix(name, ".db") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, "webui-"), ".db")
	for _, layout := range []string{SnapshotTimeFormat, legacySnapshotTimeFormat} {
		if ts, err := time.Parse(layout, stamp); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// CertificateKey returns the remote cache key for the certificate of domain.
func CertificateKey(domain string) string {
	return path.Join(CertificateRoot, domain, "tls.crt")
}

// PrivateKeyKey returns the remote cache key for the private key of domain.
func PrivateKeyKey(domain string) string {
	return path.Join(CertificateRoot, domain, "tls.key")
}

// RestoreHelperPod returns the name of the helper pod that mounts the data volume.
func RestoreHelperPod(release string) string {
	return fmt.Sprintf("%s-restore", release)
}

// StateDatabase is the file name of the local state store inside the state dir.
func StateDatabase() string {
	return "state.db"
}

// ClusterIssuer returns the name of the ACME issuer for a cluster.
func ClusterIssuer(cluster string) string {
	return fmt.Sprintf("%s-letsencrypt", cluster)
}
