package stream

import (
	"fmt"
	"sort"
	"strings"
)

// Walker is implemented by anything topology.go can recurse through: *Base
// and anything embedding it.
type Walker interface {
	String() string
	subscribersSnapshot() map[string][]*subscription
}

// DumpPaths returns one line per distinct path from root to a terminal
// subscriber, for debugging a pipeline's shape. Grounded on the original
// implementation's Publisher.print_downstream, generalized to return a
// string slice instead of printing, so callers can log it or embed it in
// a diagnostic HTTP endpoint.
func DumpPaths(root Walker) []string {
	var lines []string
	var walk func(prefix string, w Walker)
	walk = func(prefix string, w Walker) {
		snapshot := w.subscribersSnapshot()
		hasSubs := false
		for _, subs := range snapshot {
			if len(subs) > 0 {
				hasSubs = true
				break
			}
		}
		if !hasSubs {
			lines = append(lines, prefix)
			return
		}
		topics := make([]string, 0, len(snapshot))
		for t := range snapshot {
			topics = append(topics, t)
		}
		sort.Strings(topics)
		for _, topic := range topics {
			for _, sub := range snapshot[topic] {
				label := fmt.Sprintf(" => %s", describeSubscriber(sub.subscriber))
				if !(topic == DefaultTopic && sub.subTopic == DefaultTopic) {
					label = fmt.Sprintf(" [%s]=>[%s] %s", topic, sub.subTopic, describeSubscriber(sub.subscriber))
				}
				if next, ok := sub.subscriber.(Walker); ok {
					walk(prefix+label, next)
				} else {
					lines = append(lines, prefix+label)
				}
			}
		}
	}
	walk("  "+root.String(), root)
	return lines
}

// DumpSubscribers renders one block per open topic listing its
// subscriptions, grounded on Publisher.pp_subscribers.
func DumpSubscribers(root Walker) string {
	var b strings.Builder
	header := fmt.Sprintf("subscribers for %s", root.String())
	fmt.Fprintln(&b, header)
	snapshot := root.subscribersSnapshot()
	topics := make([]string, 0, len(snapshot))
	for t := range snapshot {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		fmt.Fprintf(&b, "  topic %s\n", topic)
		for _, sub := range snapshot[topic] {
			fmt.Fprintf(&b, "    [%s] => %s\n", sub.subTopic, describeSubscriber(sub.subscriber))
		}
	}
	return b.String()
}

func describeSubscriber(s Subscriber) string {
	if str, ok := s.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprintf("%T", s)
}
