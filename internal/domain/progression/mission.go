package progression

// Daily mission rules.
const (
	// TextMissionRequired is the number of messages that completes the text mission.
	TextMissionRequired = 30
	// TextMissionReward is granted once when the text mission completes.
	TextMissionReward = 100
	// RepeatVoiceMinutes is the voice presence interval that earns a reward.
	RepeatVoiceMinutes = 15
	// RepeatVoiceReward is granted every RepeatVoiceMinutes.
	RepeatVoiceReward = 100
)

// TextMission tracks today's message count.
type TextMission struct {
	Count     int  `json:"count"`
	Completed bool `json:"completed"`
}

// RepeatVoiceMission tracks today's minutes spent in busy voice channels.
type RepeatVoiceMission struct {
	Minutes int `json:"minutes"`
}

// DailyMission is a member's mission record for one local calendar day
// (document mission_data/{userId}).
type DailyMission struct {
	Date        string             `json:"date"`
	Text        TextMission        `json:"text"`
	RepeatVoice RepeatVoiceMission `json:"repeat_vc"`
}

// NewDailyMission returns an empty record for date.
func NewDailyMission(date string) *DailyMission {
	return &DailyMission{Date: date}
}

// ForDate returns m when it belongs to today, otherwise an empty record for
// today. Stale counts and completion flags never leak into a new day.
func (m *DailyMission) ForDate(today string) *DailyMission {
	if m == nil || m.Date != today {
		return NewDailyMission(today)
	}
	return m
}

// RecordText counts one message toward the text mission and reports whether
// this message completed it. Once completed the mission stays completed and
// further messages are not counted.
func (m *DailyMission) RecordText(required int) bool {
	if m.Text.Completed {
		return false
	}
	m.Text.Count++
	if m.Text.Count >= required {
		m.Text.Completed = true
		return true
	}
	return false
}

// AddVoiceMinute counts one minute of busy voice presence and reports whether
// the new total is a positive multiple of every.
func (m *DailyMission) AddVoiceMinute(every int) bool {
	m.RepeatVoice.Minutes++
	return every > 0 && m.RepeatVoice.Minutes%every == 0
}

// VoiceRewards returns how many repeat-voice rewards today's minutes earned.
func (m *DailyMission) VoiceRewards(every int) int {
	if every <= 0 {
		return 0
	}
	return m.RepeatVoice.Minutes / every
}
