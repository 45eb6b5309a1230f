// Package workload reconciles the Open WebUI application: the OpenRouter key
// secret, the data volume and the chart release wired to both.
package workload
