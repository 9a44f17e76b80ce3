package dispatch

import (
	"fmt"
	"strings"

	"orderbot/internal/broadcast"
	"orderbot/internal/reply"
	"orderbot/internal/sheets"
)

const (
	textWelcome = "🤖 Selamat datang di Bot Order!\n\n" +
		"Silakan kirim pesan untuk membuat order.\n" +
		"Semua pesan akan diproses otomatis dan tersimpan di sistem.\n\n" +
		"✏️ Balas (reply) pesan konfirmasi untuk mengubah order.\n" +
		"🚫 Balas dengan kata \"batal\" untuk membatalkan order.\n" +
		"🔎 /status untuk melihat order Anda."

	textMarkerNotFound = "❌ Tidak dapat menemukan Message ID.\n" +
		"Balas pesan order Anda atau pesan konfirmasi bot yang berisi #MSG."

	textAdminOnly = "❌ Perintah ini hanya untuk admin."
)

func recordedText(msgID, row int, follow string) string {
	return fmt.Sprintf("✅ Pesan Anda telah tercatat!\n\n📌 Message ID: %s\n🔢 Row: %d\n\n%s",
		reply.Marker(msgID), row, follow)
}

func systemErrorText(resp sheets.Response) string {
	return "❌ Maaf, terjadi kesalahan sistem.\nPesan: " + storeMessage(resp)
}

func updatedText(target int, original, updated string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Order %s berhasil diupdate!\n\n", reply.Marker(target))
	if original != "" {
		fmt.Fprintf(&b, "📝 Pesan awal: %s\n", original)
	}
	fmt.Fprintf(&b, "✏️ Pesan baru: %s", updated)
	return b.String()
}

func updateFailedText(resp sheets.Response) string {
	return "❌ Gagal mengupdate order.\nPesan: " + storeMessage(resp)
}

func cancelledText(target int, original string) string {
	s := fmt.Sprintf("🚫 Order %s telah dibatalkan.", reply.Marker(target))
	if original != "" {
		s += "\n\n📝 Pesan awal: " + original
	}
	return s
}

func cancelFailedText(resp sheets.Response) string {
	return "❌ Gagal membatalkan order.\nPesan: " + storeMessage(resp)
}

const maxStatusOrders = 10

func statusText(resp sheets.Response) string {
	if !resp.Success {
		return "❌ Gagal mengambil status order.\nPesan: " + storeMessage(resp)
	}
	if len(resp.Orders) == 0 {
		return "📭 Belum ada order yang tercatat."
	}
	count := resp.Count.Int()
	if count < len(resp.Orders) {
		count = len(resp.Orders)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Order Anda (%d):\n", count)
	for i, o := range resp.Orders {
		if i == maxStatusOrders {
			fmt.Fprintf(&b, "\n… dan %d lainnya", len(resp.Orders)-maxStatusOrders)
			break
		}
		fmt.Fprintf(&b, "\n📌 #MSG%s · %s · %s", o.MessageID, o.OrderType, o.Status)
		if msg := strings.TrimSpace(o.Message.String()); msg != "" {
			fmt.Fprintf(&b, "\n   %s", truncate(msg, 80))
		}
	}
	return b.String()
}

func broadcastText(rep broadcast.Report) string {
	if rep.Skipped {
		return "⚠️ Broadcast dilewati: " + rep.Reason
	}
	return fmt.Sprintf("📢 Broadcast selesai!\n✅ Berhasil: %d\n❌ Gagal: %d", rep.Sent, rep.Failed)
}

func testResultText(resp sheets.Response) string {
	if resp.Success {
		return fmt.Sprintf("✅ Connection OK!\nRow: %d\nCheck your spreadsheet.", resp.RowNumber.Int())
	}
	return "❌ Connection FAILED!\nError: " + storeMessage(resp)
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}
