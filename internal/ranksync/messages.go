package ranksync

import (
	"fmt"
	"strings"
)

var outcomeMessages = map[string]map[string]string{
	"tr": {
		StatusAssigned:      "Faceit seviyen **%[2]d** olarak belirlendi ve <@&%[3]s> rolü verildi.",
		StatusNoRole:        "Faceit seviyen **%[2]d**, ancak bu seviye için tanımlı bir rol yok.",
		StatusRoleFailed:    "Faceit seviyen **%[2]d**, ancak <@&%[3]s> rolü verilemedi. Lütfen bir yöneticiye haber ver.",
		StatusNotFound:      "**%[1]s** adlı Faceit oyuncusu bulunamadı. Kullanıcı adını kontrol et.",
		StatusNoGameData:    "**%[1]s** için CS2 veya CS:GO seviye bilgisi bulunamadı.",
		StatusProviderError: "Faceit şu anda yanıt vermiyor, lütfen daha sonra tekrar dene.",
		StatusFailed:        "Rolün atanırken bir hata oluştu, lütfen daha sonra tekrar dene.",
	},
	"en": {
		StatusAssigned:      "Your Faceit level is **%[2]d** and you were given <@&%[3]s>.",
		StatusNoRole:        "Your Faceit level is **%[2]d**, but no role is mapped to this level.",
		StatusRoleFailed:    "Your Faceit level is **%[2]d**, but <@&%[3]s> could not be granted. Please tell an administrator.",
		StatusNotFound:      "No Faceit player named **%[1]s** was found. Check the nickname.",
		StatusNoGameData:    "**%[1]s** has no CS2 or CS:GO skill level.",
		StatusProviderError: "Faceit is not responding right now, please try again later.",
		StatusFailed:        "Something went wrong while assigning your role, please try again later.",
	},
}

// Message is the single user-facing reply for the outcome.
func (o Outcome) Message(lang string) string {
	messages, ok := outcomeMessages[lang]
	if !ok {
		messages = outcomeMessages["tr"]
	}
	format, ok := messages[o.Status]
	if !ok {
		format = messages[StatusFailed]
	}
	if !strings.Contains(format, "%") {
		return format
	}
	return fmt.Sprintf(format, o.Nickname, o.Level, o.RoleID)
}
