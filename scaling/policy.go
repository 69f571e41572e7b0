package scaling

import (
	"fmt"
	"strconv"
	"strings"
)

const policyFieldCount = 5

// Policy is a percentage step scaling policy for a single ECS service.
type Policy struct {
	ServiceName     string
	MinTasks        int
	MaxTasks        int
	CooldownSeconds int
	ScalePercent    int
}

// ParseError reports an alarm description that is not a valid policy descriptor.
type ParseError struct {
	Descriptor string
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid policy descriptor %q: %s", e.Descriptor, e.Reason)
}

// ParsePolicy decodes a descriptor of the form
// "serviceName,minTasks,maxTasks,cooldownSeconds,scalePercent".
// Fields are positional and are not trimmed. Integers must be in canonical
// form (no leading '+' or zeros) so the descriptor round-trips through String.
func ParsePolicy(descriptor string) (Policy, error) {
	fields := strings.Split(descriptor, ",")
	if len(fields) != policyFieldCount {
		return Policy{}, &ParseError{
			Descriptor: descriptor,
			Reason:     fmt.Sprintf("expected %d fields, got %d", policyFieldCount, len(fields)),
		}
	}
	if fields[0] == "" {
		return Policy{}, &ParseError{Descriptor: descriptor, Reason: "service name is empty"}
	}

	names := [...]string{"min tasks", "max tasks", "cooldown", "scale percent"}
	var values [4]int
	for i, f := range fields[1:] {
		v, err := strconv.Atoi(f)
		if err == nil && strconv.Itoa(v) != f {
			err = strconv.ErrSyntax
		}
		if err != nil {
			return Policy{}, &ParseError{
				Descriptor: descriptor,
				Reason:     fmt.Sprintf("%s %q is not an integer", names[i], f),
			}
		}
		values[i] = v
	}

	p := Policy{
		ServiceName:     fields[0],
		MinTasks:        values[0],
		MaxTasks:        values[1],
		CooldownSeconds: values[2],
		ScalePercent:    values[3],
	}
	if p.MinTasks < 0 {
		return Policy{}, &ParseError{Descriptor: descriptor, Reason: "min tasks is negative"}
	}
	if p.MaxTasks < p.MinTasks {
		return Policy{}, &ParseError{Descriptor: descriptor, Reason: "max tasks is less than min tasks"}
	}
	if p.CooldownSeconds < 0 {
		return Policy{}, &ParseError{Descriptor: descriptor, Reason: "cooldown is negative"}
	}

	return p, nil
}

// String returns the descriptor form of the policy.
func (p Policy) String() string {
	return fmt.Sprintf("%s,%d,%d,%d,%d", p.ServiceName, p.MinTasks, p.MaxTasks, p.CooldownSeconds, p.ScalePercent)
}
