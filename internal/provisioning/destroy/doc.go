// Package destroy tears a deployment down.
//
// Tracked resources are destroyed group by group in reverse apply order:
// the workload, then the platform releases, then the cloud resources. The
// static IP and the backup bucket are persistent-protected and survive a
// destroy unless protection is explicitly overridden. The database is
// snapshotted first while the cluster is still reachable.
package destroy
