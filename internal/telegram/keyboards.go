package telegram

import (
	"net/url"

	"github.com/go-telegram/bot/models"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/suspectuso/boost-tracker/internal/payment"
)

// PaymentKeyboard returns link buttons for an alert, or nil when there is
// nothing to link to
func PaymentKeyboard(p payment.Payment) *models.InlineKeyboardMarkup {
	var row []models.InlineKeyboardButton

	if p.Type == payment.TypeZap && p.Identifier != "" {
		if note, err := nip19.EncodeNote(p.Identifier); err == nil {
			row = append(row, models.InlineKeyboardButton{
				Text: "🔗 View zap",
				URL:  "https://njump.me/" + note,
			})
		}
	}

	if p.EpisodeGUID != "" {
		row = append(row, models.InlineKeyboardButton{
			Text: "🎧 Episode",
			URL:  "https://podcastindex.org/search?type=all&q=" + url.QueryEscape(p.EpisodeGUID),
		})
	}

	if len(row) == 0 {
		return nil
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{row},
	}
}
