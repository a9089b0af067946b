package ros

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	Sep       = "/"
	GlobalNS  = "/"
	PrivateNS = "~"
	Remap     = ":="
)

type NameMap map[string]string

var (
	namePattern      = regexp.MustCompile(`^[~/]?([a-zA-Z]\w*/)*[a-zA-Z]\w*$`)
	namespacePattern = regexp.MustCompile(`^/([a-zA-Z]\w*/)*$`)
)

func getNamespace(name string) string {
	name = strings.TrimSuffix(name, Sep)
	if i := strings.LastIndex(name, Sep); i >= 0 {
		return name[:i+1]
	}
	return GlobalNS
}

// qualifyNodeName splits a node name into its namespace and base name.
func qualifyNodeName(nodeName string) (string, string, error) {
	if nodeName == "" {
		return "", "", errors.New("empty node name")
	}
	if strings.HasPrefix(nodeName, PrivateNS) {
		return "", "", errors.New("node name may not be private")
	}
	if !isValidName(nodeName) {
		return "", "", errors.Errorf("invalid node name %q", nodeName)
	}

	var components []string
	for _, c := range strings.Split(canonicalizeName(nodeName), Sep) {
		if c != "" {
			components = append(components, c)
		}
	}
	if len(components) == 0 {
		return "", "", errors.New("node name has no base name")
	}
	if len(components) == 1 {
		return GlobalNS, components[0], nil
	}
	namespace := GlobalNS + strings.Join(components[:len(components)-1], Sep)
	return namespace, components[len(components)-1], nil
}

// resolveName expands name to a global name. base is the fully qualified name
// of the node the resolution happens for; private names resolve under it,
// relative names resolve in its namespace.
func resolveName(name string, base string) string {
	if name == "" {
		return getNamespace(base)
	}

	canonName := canonicalizeName(name)
	switch {
	case isGlobalName(canonName):
		return canonName
	case isPrivateName(canonName):
		return canonicalizeName(base + Sep + canonName[1:])
	}
	return getNamespace(base) + canonName
}

func isValidName(name string) bool {
	return name == "" || name == GlobalNS || name == PrivateNS ||
		namePattern.MatchString(name)
}

// isValidNamespace reports whether name is a well formed global namespace,
// with or without its trailing separator.
func isValidNamespace(name string) bool {
	if name == "" {
		return false
	}
	if !strings.HasSuffix(name, Sep) {
		name += Sep
	}
	return namespacePattern.MatchString(name)
}

func isGlobalName(name string) bool {
	return strings.HasPrefix(name, GlobalNS)
}

func isPrivateName(name string) bool {
	return strings.HasPrefix(name, PrivateNS)
}

// canonicalizeName squeezes repeated separators and drops a trailing one,
// keeping a leading separator when the name is global.
func canonicalizeName(name string) string {
	if name == GlobalNS {
		return name
	}
	var words []string
	for _, word := range strings.Split(name, Sep) {
		if word != "" {
			words = append(words, word)
		}
	}
	joined := strings.Join(words, Sep)
	if strings.HasPrefix(name, GlobalNS) {
		return GlobalNS + joined
	}
	return joined
}

// processArguments splits ROS command line arguments into name remappings,
// private parameter assignments, special keys (__name, __master, ...) and
// everything that is not ROS's business.
func processArguments(args []string) (NameMap, NameMap, NameMap, []string) {
	mapping := make(NameMap)
	params := make(NameMap)
	specials := make(NameMap)
	rest := make([]string, 0)
	for _, arg := range args {
		key, value, found := strings.Cut(arg, Remap)
		if !found || strings.Contains(value, Remap) {
			rest = append(rest, arg)
			continue
		}
		switch {
		case strings.HasPrefix(key, "__"):
			specials[key] = value
		case strings.HasPrefix(key, "_"):
			params[key[1:]] = value
		default:
			mapping[key] = value
		}
	}
	return mapping, params, specials, rest
}

// NameResolver resolves names relative to one node and applies the node's
// remappings. Remapping keys and values are resolved once, up front, so a
// relative remapping like foo:=bar behaves the same however foo is later
// written.
type NameResolver struct {
	nodeName        string
	namespace       string
	qualifiedName   string
	mapping         NameMap
	resolvedMapping NameMap
}

func newNameResolver(namespace string, nodeName string, remapping NameMap) *NameResolver {
	n := &NameResolver{
		nodeName:        nodeName,
		namespace:       canonicalizeName(namespace),
		qualifiedName:   canonicalizeName(namespace + Sep + nodeName),
		mapping:         remapping,
		resolvedMapping: make(NameMap),
	}
	for k, v := range remapping {
		n.resolvedMapping[n.resolve(k)] = n.resolve(v)
	}
	return n
}

// resolve expands name to a global name, ignoring remappings.
func (n *NameResolver) resolve(name string) string {
	return resolveName(name, n.qualifiedName)
}

// remap resolves name and applies the node's remappings to the result.
func (n *NameResolver) remap(name string) string {
	resolved := n.resolve(name)
	if remapped, ok := n.resolvedMapping[resolved]; ok {
		return remapped
	}
	return resolved
}
