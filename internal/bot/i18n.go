package bot

import (
	"faceit-rolebot/internal/rolepanel"

	"github.com/bwmarrin/discordgo"
)

var translations = map[string]map[string]string{
	"tr": {
		"panel_title":         "Rol Seçimi",
		"panel_description":   "Aşağıdaki menüden almak istediğin rolleri seç. Seçmediğin roller kaldırılır.",
		"panel_placeholder":   "Rollerini seç",
		"panel_empty":         "Rol bulunamadı",
		"panel_personal":      "Rollerimi düzenle",
		"summary_granted":     "Eklenen roller",
		"summary_revoked":     "Kaldırılan roller",
		"summary_failed":      "Uygulanamayan roller",
		"summary_none":        "Rollerinde değişiklik yapılmadı.",
		"panel_pick_title":    "Rol paneli",
		"panel_pick_desc":     "Panelde gösterilecek rolleri seç. Panel <#%s> kanalına gönderilecek.",
		"panel_pick_hint":     "Panel rollerini seç",
		"panel_created":       "Rol paneli <#%s> kanalına gönderildi.",
		"panel_edited":        "Rol paneli güncellendi.",
		"panel_recreated":     "Rol paneli silinmişti, <#%s> kanalına yeniden gönderildi.",
		"panel_no_channel":    "Henüz bir rol paneli gönderilmemiş. Önce /send-role-panel kullan.",
		"panel_failed":        "Rol paneli gönderilemedi. Botun kanala yazma iznini kontrol et.",
		"panel_not_saved":     "Panel gönderildi ancak kaydedilemedi. Lütfen tekrar dene.",
		"selection_failed":    "Rollerin güncellenemedi, lütfen daha sonra tekrar dene.",
		"faceit_title":        "Faceit Seviye Rolü",
		"faceit_desc":         "Faceit seviyene göre rol almak için aşağıdaki butona tıkla ve Faceit kullanıcı adını gir.",
		"faceit_button":       "Faceit rolümü al",
		"faceit_posted":       "Faceit butonu bu kanala gönderildi.",
		"faceit_post_failed":  "Faceit butonu gönderilemedi.",
		"modal_title":         "Faceit Kullanıcı Adı",
		"modal_label":         "Faceit kullanıcı adın",
		"modal_placeholder":   "ör. s1mple",
		"modal_empty":         "Faceit kullanıcı adı boş olamaz.",
		"request_throttled":   "Çok fazla deneme yaptın. Lütfen %s sonra tekrar dene.",
		"level_role_set":      "Seviye **%d** artık <@&%s> rolüne bağlı.",
		"level_invalid":       "Seviye 1 ile 10 arasında olmalı.",
		"emoji_set":           "<@&%s> rolü için emoji %s olarak ayarlandı.",
		"emoji_invalid":       "Geçerli bir emoji gir (ör. 🔥 veya <:isim:123>).",
		"config_failed":       "Ayarlar kaydedilemedi.",
		"sync_started":        "Rank senkronizasyonu başlatıldı.",
		"sync_running":        "Zaten çalışan bir rank senkronizasyonu var.",
		"report_title":        "Rank Raporu",
		"report_desc":         "Takip edilen kullanıcılar ve son 7 günün kayıtları.",
		"report_failed":       "Rapor oluşturulamadı.",
		"field_tracked":       "Takip edilen",
		"field_levels":        "Seviyeler",
		"field_unresolved":    "Seviyesi bilinmeyen",
		"field_events":        "Kayıtlar",
		"field_last_pass":     "Son senkronizasyon",
		"value_none":          "Yok",
		"error_only_guild":    "Bu komut yalnızca sunucularda kullanılabilir.",
		"error_no_permission": "Bu işlem için Rolleri Yönet yetkisi gerekiyor.",
		"error_unknown":       "Bilinmeyen işlem.",
		"cmd_send_panel":      "Rol panelini gönder",
		"cmd_refresh_panel":   "Rol panelini yenile",
		"cmd_faceit_button":   "Faceit rol butonunu gönder",
		"cmd_set_level_role":  "Bir Faceit seviyesine rol bağla",
		"cmd_set_role_emoji":  "Bir rolün panel emojisini ayarla",
		"cmd_rank_sync":       "Rank senkronizasyonunu şimdi çalıştır",
		"cmd_rank_report":     "Rank raporunu göster",
		"opt_channel":         "Panelin gönderileceği kanal",
		"opt_level":           "Faceit seviyesi (1-10)",
		"opt_role":            "Rol",
		"opt_emoji":           "Emoji",
	},
	"en": {
		"panel_title":         "Role Selection",
		"panel_description":   "Pick the roles you want from the menu below. Roles you leave out are removed.",
		"panel_placeholder":   "Choose your roles",
		"panel_empty":         "No roles found",
		"panel_personal":      "Edit my roles",
		"summary_granted":     "Added roles",
		"summary_revoked":     "Removed roles",
		"summary_failed":      "Roles that could not be applied",
		"summary_none":        "Your roles did not change.",
		"panel_pick_title":    "Role panel",
		"panel_pick_desc":     "Pick the roles to show on the panel. It will be posted in <#%s>.",
		"panel_pick_hint":     "Choose panel roles",
		"panel_created":       "Role panel posted in <#%s>.",
		"panel_edited":        "Role panel updated.",
		"panel_recreated":     "The role panel was deleted and has been posted again in <#%s>.",
		"panel_no_channel":    "No role panel has been posted yet. Use /send-role-panel first.",
		"panel_failed":        "Could not post the role panel. Check the bot can write in that channel.",
		"panel_not_saved":     "The panel was posted but could not be saved. Please try again.",
		"selection_failed":    "Your roles could not be updated, please try again later.",
		"faceit_title":        "Faceit Level Role",
		"faceit_desc":         "Click the button below and enter your Faceit nickname to get a role for your Faceit level.",
		"faceit_button":       "Get my Faceit role",
		"faceit_posted":       "Faceit button posted in this channel.",
		"faceit_post_failed":  "Could not post the Faceit button.",
		"modal_title":         "Faceit Nickname",
		"modal_label":         "Your Faceit nickname",
		"modal_placeholder":   "e.g. s1mple",
		"modal_empty":         "The Faceit nickname cannot be empty.",
		"request_throttled":   "Too many attempts. Please try again in %s.",
		"level_role_set":      "Level **%d** is now mapped to <@&%s>.",
		"level_invalid":       "The level must be between 1 and 10.",
		"emoji_set":           "Emoji for <@&%s> set to %s.",
		"emoji_invalid":       "Enter a valid emoji (e.g. 🔥 or <:name:123>).",
		"config_failed":       "Could not save the settings.",
		"sync_started":        "Rank sync started.",
		"sync_running":        "A rank sync is already running.",
		"report_title":        "Rank Report",
		"report_desc":         "Tracked users and audit entries from the last 7 days.",
		"report_failed":       "Could not build the report.",
		"field_tracked":       "Tracked",
		"field_levels":        "Levels",
		"field_unresolved":    "Unknown level",
		"field_events":        "Entries",
		"field_last_pass":     "Last sync",
		"value_none":          "None",
		"error_only_guild":    "This command can only be used in a server.",
		"error_no_permission": "You need the Manage Roles permission for this.",
		"error_unknown":       "Unknown action.",
		"cmd_send_panel":      "Post the role panel",
		"cmd_refresh_panel":   "Refresh the role panel",
		"cmd_faceit_button":   "Post the Faceit role button",
		"cmd_set_level_role":  "Map a Faceit level to a role",
		"cmd_set_role_emoji":  "Set the panel emoji of a role",
		"cmd_rank_sync":       "Run the rank sync now",
		"cmd_rank_report":     "Show the rank report",
		"opt_channel":         "Channel to post the panel in",
		"opt_level":           "Faceit level (1-10)",
		"opt_role":            "Role",
		"opt_emoji":           "Emoji",
	},
}

func (b *Bot) t(lang, key string) string {
	return translate(lang, key)
}

func translate(lang, key string) string {
	if value, ok := translations[lang][key]; ok {
		return value
	}
	if value, ok := translations["tr"][key]; ok {
		return value
	}
	return key
}

// PanelTexts returns the role panel strings for lang.
func PanelTexts(lang string) rolepanel.Texts {
	return rolepanel.Texts{
		Title:          translate(lang, "panel_title"),
		Description:    translate(lang, "panel_description"),
		Placeholder:    translate(lang, "panel_placeholder"),
		EmptyOption:    translate(lang, "panel_empty"),
		PersonalButton: translate(lang, "panel_personal"),
	}
}

func summaryTexts(lang string) rolepanel.SummaryTexts {
	return rolepanel.SummaryTexts{
		Granted:   translate(lang, "summary_granted"),
		Revoked:   translate(lang, "summary_revoked"),
		Failed:    translate(lang, "summary_failed"),
		NoChanges: translate(lang, "summary_none"),
	}
}

// language picks the reply language: the member's client locale when it is
// one we speak, the configured default otherwise.
func (b *Bot) language(interaction *discordgo.InteractionCreate) string {
	switch interaction.Locale {
	case discordgo.Turkish:
		return "tr"
	case discordgo.EnglishUS, discordgo.EnglishGB:
		return "en"
	}
	return b.cfg.DefaultLanguage
}

// localized builds the description localizations of a command from a key.
func localized(key string) map[discordgo.Locale]string {
	return map[discordgo.Locale]string{
		discordgo.Turkish:   translate("tr", key),
		discordgo.EnglishUS: translate("en", key),
		discordgo.EnglishGB: translate("en", key),
	}
}
