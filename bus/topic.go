package bus

// Topic identifies a notification stream. Like endpoints, the set is fixed.
type Topic uint8

const (
	TopicNone        Topic = iota
	TopicPowerSource       // sources -> arbiter: attach, capability, detach
	TopicPowerPolicy       // arbiter -> consumers: limits, failures
	TopicBattery
	TopicButton
	TopicPlatform
	TopicFwUpdate
	TopicHID
	TopicThermal // thermal -> arbiter and host: level changes

	numTopics
)

// MaxTopics is the size of the subscription table.
const MaxTopics = int(numTopics)

var topicNames = [numTopics]string{
	TopicNone:        "none",
	TopicPowerSource: "power_source",
	TopicPowerPolicy: "power_policy",
	TopicBattery:     "battery",
	TopicButton:      "button",
	TopicPlatform:    "platform",
	TopicFwUpdate:    "fwupdate",
	TopicHID:         "hid",
	TopicThermal:     "thermal",
}

func (t Topic) Valid() bool { return t > TopicNone && t < numTopics }

func (t Topic) String() string {
	if t < numTopics {
		return topicNames[t]
	}
	return "topic?"
}

// ParseTopic maps a static-table name to its topic.
func ParseTopic(name string) (Topic, bool) {
	for i := Topic(1); i < numTopics; i++ {
		if topicNames[i] == name {
			return i, true
		}
	}
	return TopicNone, false
}
