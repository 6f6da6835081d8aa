package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/codalotl/agentbench/internal/types"
)

// latestVersion picks the newest agent version in all. Semver-like versions win over anything else.
func latestVersion(all []types.BenchmarkResult) string {
	set := map[string]bool{}
	for _, r := range all {
		if v := strings.TrimSpace(r.AgentVersion); v != "" {
			set[v] = true
		}
	}
	var semvers, other []string
	for v := range set {
		if isSemverLike(v) {
			semvers = append(semvers, v)
		} else {
			other = append(other, v)
		}
	}
	if len(semvers) > 0 {
		sort.Slice(semvers, func(i, j int) bool { return compareSemver(semvers[i], semvers[j]) < 0 })
		return semvers[len(semvers)-1]
	}
	if len(other) == 0 {
		return ""
	}
	sort.Strings(other)
	return other[len(other)-1]
}

// filterToLatestVersionPerAgentModel drops results from older agent versions. Groups with no
// versions at all are kept whole.
func filterToLatestVersionPerAgentModel(all []types.BenchmarkResult) []types.BenchmarkResult {
	grouped := map[string][]types.BenchmarkResult{}
	for _, r := range all {
		key := agentModelKey(r.Agent, r.ModelName)
		grouped[key] = append(grouped[key], r)
	}
	out := make([]types.BenchmarkResult, 0, len(all))
	for _, group := range grouped {
		selected := latestVersion(group)
		if selected == "" {
			out = append(out, group...)
			continue
		}
		for _, r := range group {
			if strings.TrimSpace(r.AgentVersion) == selected {
				out = append(out, r)
			}
		}
	}
	return out
}

// uniqueVersionsSorted orders semver-like versions first (ascending), then the rest lexically.
func uniqueVersionsSorted(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	semvers := make([]string, 0, len(set))
	other := make([]string, 0, len(set))
	for v := range set {
		if isSemverLike(v) {
			semvers = append(semvers, v)
		} else {
			other = append(other, v)
		}
	}
	sort.Slice(semvers, func(i, j int) bool {
		return compareSemver(semvers[i], semvers[j]) < 0
	})
	sort.Strings(other)
	return append(semvers, other...)
}

type parsedVersion struct {
	major  int
	minor  int
	patch  int
	pre    string
	hasPre bool
}

func isSemverLike(v string) bool {
	_, ok := parseSemver(v)
	return ok
}

func compareSemver(a, b string) int {
	pa, oka := parseSemver(a)
	pb, okb := parseSemver(b)
	if !oka || !okb {
		return strings.Compare(a, b)
	}
	if pa.major != pb.major {
		return cmpInt(pa.major, pb.major)
	}
	if pa.minor != pb.minor {
		return cmpInt(pa.minor, pb.minor)
	}
	if pa.patch != pb.patch {
		return cmpInt(pa.patch, pb.patch)
	}
	if pa.hasPre != pb.hasPre {
		if pa.hasPre {
			return -1
		}
		return 1
	}
	return strings.Compare(pa.pre, pb.pre)
}

// parseSemver accepts "1.2.3", "v1.2.3", "1.2.3-rc.1" and "1.2.3+build".
func parseSemver(raw string) (parsedVersion, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if s == "" {
		return parsedVersion{}, false
	}
	core, _, _ := strings.Cut(s, "+")
	core, pre, hasPre := strings.Cut(core, "-")
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return parsedVersion{}, false
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return parsedVersion{}, false
		}
		nums[i] = n
	}
	return parsedVersion{major: nums[0], minor: nums[1], patch: nums[2], pre: pre, hasPre: hasPre && pre != ""}, true
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
