// infer.go adds the evidence-based dependency heuristics of §4.2 on
// top of the teacher's label-based ParseDependsOn/Build: environment
// variable connection patterns and runtime log mentions, scoped to a
// container's own compose project so unrelated services never match.
package deps

import (
	"regexp"
	"strings"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

// envHostPattern matches the common "X_HOST=value" / "X_URL=value"
// environment variable shapes used to point at another service.
var envHostPattern = regexp.MustCompile(`(?i)(HOST|HOSTNAME|ADDR|URL|URI|ENDPOINT)$`)

// SiblingIndex groups a host's containers by compose project, the
// "known siblings" cache §4.2 describes: re-derived from the current
// inventory snapshot on every scan rather than persisted, since
// project membership is already carried on each container.
type SiblingIndex struct {
	byProject map[string][]model.Container
}

// BuildSiblingIndex groups containers by ComposeProject.
func BuildSiblingIndex(containers []model.Container) *SiblingIndex {
	idx := &SiblingIndex{byProject: map[string][]model.Container{}}
	for _, c := range containers {
		if c.ComposeProject == "" {
			continue
		}
		idx.byProject[c.ComposeProject] = append(idx.byProject[c.ComposeProject], c)
	}
	return idx
}

// Siblings returns the other containers in c's compose project.
func (idx *SiblingIndex) Siblings(c model.Container) []model.Container {
	if c.ComposeProject == "" {
		return nil
	}
	var out []model.Container
	for _, sib := range idx.byProject[c.ComposeProject] {
		if sib.ShortID != c.ShortID {
			out = append(out, sib)
		}
	}
	return out
}

// InferFromEnvironment scans a container's (already redacted)
// environment for values that name a sibling service or container,
// the "environment-variable connection-pattern heuristic" of §4.2.
// Only variable names shaped like a host/URL pointer are considered,
// to avoid false positives on unrelated env vars that happen to
// contain a sibling's name as a substring.
func InferFromEnvironment(c model.Container, idx *SiblingIndex) []string {
	siblings := idx.Siblings(c)
	if len(siblings) == 0 {
		return nil
	}
	found := map[string]bool{}
	for key, val := range c.Environment {
		if !envHostPattern.MatchString(key) {
			continue
		}
		if val == "" || val == "***REDACTED***" {
			continue
		}
		lowerVal := strings.ToLower(val)
		for _, sib := range siblings {
			if matchesServiceName(lowerVal, sib) {
				found[sib.ShortID] = true
			}
		}
	}
	return keys(found)
}

func matchesServiceName(lowerVal string, sib model.Container) bool {
	candidates := []string{sib.ComposeService, sib.Name}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if strings.Contains(lowerVal, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// logMentionPattern pulls bare hostnames or host:port pairs out of a
// log line for the runtime-log regex heuristic (§4.2), applied only
// to already-running containers since a stopped container emits no
// fresh evidence.
var logMentionPattern = regexp.MustCompile(`\b([a-zA-Z][a-zA-Z0-9_.-]{1,62})(?::\d{2,5})?\b`)

// InferFromLogs scans recent log lines of a running container for
// mentions of sibling service/container names.
func InferFromLogs(c model.Container, lines []string, idx *SiblingIndex) []string {
	if c.Status != model.StatusRunning {
		return nil
	}
	siblings := idx.Siblings(c)
	if len(siblings) == 0 {
		return nil
	}
	byName := map[string]string{} // lowercase service/name -> short id
	for _, sib := range siblings {
		if sib.ComposeService != "" {
			byName[strings.ToLower(sib.ComposeService)] = sib.ShortID
		}
		if sib.Name != "" {
			byName[strings.ToLower(sib.Name)] = sib.ShortID
		}
	}

	found := map[string]bool{}
	for _, line := range lines {
		for _, m := range logMentionPattern.FindAllStringSubmatch(line, -1) {
			if id, ok := byName[strings.ToLower(m[1])]; ok {
				found[id] = true
			}
		}
	}
	return keys(found)
}

func keys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ResolveDeclaredDependencies maps the label-derived dependency names
// from ParseDependsOn (service/container names) to the compose service
// names of matching siblings, the form internal/graph matches against
// (project, service) when it turns declared dependencies into edges.
// A name that matches no sibling with a compose service is dropped.
func ResolveDeclaredDependencies(c model.Container, idx *SiblingIndex) []string {
	declared := ParseDependsOn(c.Labels)
	if len(declared) == 0 {
		return nil
	}
	siblings := idx.Siblings(c)
	byName := map[string]string{}
	for _, sib := range siblings {
		if sib.ComposeService == "" {
			continue
		}
		byName[sib.ComposeService] = sib.ComposeService
		byName[sib.Name] = sib.ComposeService
	}
	var out []string
	for _, name := range declared {
		if id, ok := byName[name]; ok {
			out = append(out, id)
		}
	}
	return out
}
