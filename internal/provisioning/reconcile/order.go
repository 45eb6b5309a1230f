package reconcile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// Order sorts resources so that every resource follows the resources it
// depends on. Among independent resources the input order is kept.
//
// Dependencies on keys outside the set are returned in external; they are
// expected to have been applied by an earlier phase. A cycle or a duplicate
// key is an error.
func Order(resources []provisioning.ManagedResource) (ordered []provisioning.ManagedResource, external map[string][]string, err error) {
	index := make(map[string]int, len(resources))
	for i, r := range resources {
		key := r.Key()
		if _, dup := index[key]; dup {
			return nil, nil, fmt.Errorf("duplicate resource %s in desired set", key)
		}
		index[key] = i
	}

	indegree := make([]int, len(resources))
	dependents := make([][]int, len(resources))
	external = map[string][]string{}
	for i, r := range resources {
		for _, dep := range r.DependsOn {
			j, ok := index[dep]
			if !ok {
				external[r.Key()] = append(external[r.Key()], dep)
				continue
			}
			if j == i {
				return nil, nil, fmt.Errorf("resource %s depends on itself", r.Key())
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// Kahn's algorithm, always taking the lowest ready input index.
	var ready []int
	for i := range resources {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	ordered = make([]provisioning.ManagedResource, 0, len(resources))
	for len(ready) > 0 {
		slices.Sort(ready)
		i := ready[0]
		ready = ready[1:]
		ordered = append(ordered, resources[i])
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	if len(ordered) != len(resources) {
		var stuck []string
		for i, r := range resources {
			if indegree[i] > 0 {
				stuck = append(stuck, r.Key())
			}
		}
		return nil, nil, fmt.Errorf("dependency cycle between %s", strings.Join(stuck, ", "))
	}
	return ordered, external, nil
}

// reverseOrder orders records for teardown: dependents before dependencies.
// Dependencies on records outside the slice are ignored.
func reverseOrder(records []provisioning.ResourceRecord) ([]provisioning.ResourceRecord, error) {
	resources := make([]provisioning.ManagedResource, len(records))
	byKey := make(map[string]provisioning.ResourceRecord, len(records))
	for i, rec := range records {
		resources[i] = rec.Resource
		byKey[rec.Resource.Key()] = rec
	}
	ordered, _, err := Order(resources)
	if err != nil {
		return nil, err
	}
	out := make([]provisioning.ResourceRecord, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		out = append(out, byKey[ordered[i].Key()])
	}
	return out, nil
}
