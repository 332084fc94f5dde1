package routing

import "strings"

// Keywords are the literal, case-sensitive command triggers.
type Keywords struct {
	RequestHuman string `yaml:"request_human"`
	CancelHuman  string `yaml:"cancel_human"`
	Accept       string `yaml:"accept"`
	End          string `yaml:"end"`
	List         string `yaml:"list"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		RequestHuman: "转人工",
		CancelHuman:  "转人机",
		Accept:       "接入对话",
		End:          "结束对话",
		List:         "查看会话",
	}
}

// WithDefaults fills empty keywords from DefaultKeywords.
func (k Keywords) WithDefaults() Keywords {
	d := DefaultKeywords()
	if strings.TrimSpace(k.RequestHuman) == "" {
		k.RequestHuman = d.RequestHuman
	}
	if strings.TrimSpace(k.CancelHuman) == "" {
		k.CancelHuman = d.CancelHuman
	}
	if strings.TrimSpace(k.Accept) == "" {
		k.Accept = d.Accept
	}
	if strings.TrimSpace(k.End) == "" {
		k.End = d.End
	}
	if strings.TrimSpace(k.List) == "" {
		k.List = d.List
	}
	return k
}

// Reserved reports whether text is exactly one of the command keywords.
func (k Keywords) Reserved(text string) bool {
	text = strings.TrimSpace(text)
	switch text {
	case k.RequestHuman, k.CancelHuman, k.Accept, k.End, k.List:
		return text != ""
	}
	return false
}

type command int

const (
	cmdNone command = iota
	cmdRequestHuman
	cmdCancelHuman
	cmdAccept
	cmdEnd
	cmdList
)

// parse splits text into a command and its optional argument. The keyword
// must be the first whitespace-separated field.
func (k Keywords) parse(text string) (command, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return cmdNone, ""
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch fields[0] {
	case k.RequestHuman:
		return cmdRequestHuman, ""
	case k.CancelHuman:
		return cmdCancelHuman, ""
	case k.Accept:
		return cmdAccept, arg
	case k.End:
		return cmdEnd, ""
	case k.List:
		return cmdList, ""
	default:
		return cmdNone, ""
	}
}
