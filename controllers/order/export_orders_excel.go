package orderControllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tealeg/xlsx"
	"gorm.io/gorm"

	"github.com/cartizen/storefront-api/models"
)

// ExportOrdersToExcel streams all orders as a spreadsheet, one row per
// order, with the discount breakdown included. GET /admin/orders/export
func ExportOrdersToExcel(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var orders []models.Order
		if err := db.Preload("Items").Order("created_at DESC").Find(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
			return
		}

		file := xlsx.NewFile()
		sheet, err := file.AddSheet("Orders")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel sheet"})
			return
		}

		headers := []string{
			"ID", "UserID", "PaymentRef", "Subtotal", "Discount",
			"CouponCode", "Total", "Items", "Status", "PaymentStatus", "CreatedAt",
		}
		headerRow := sheet.AddRow()
		for _, h := range headers {
			headerRow.AddCell().SetValue(h)
		}

		for _, o := range orders {
			row := sheet.AddRow()

			row.AddCell().SetValue(o.ID)
			if o.UserID != nil {
				row.AddCell().SetValue(*o.UserID)
			} else {
				row.AddCell().SetValue("guest")
			}
			row.AddCell().SetValue(o.PaymentRef)
			row.AddCell().SetValue(o.Subtotal)
			row.AddCell().SetValue(o.DiscountAmount)
			if o.CouponCode != nil {
				row.AddCell().SetValue(*o.CouponCode)
			} else {
				row.AddCell().SetValue("")
			}
			row.AddCell().SetValue(o.TotalAmount)

			itemCount := 0
			for _, item := range o.Items {
				itemCount += item.Quantity
			}
			row.AddCell().SetValue(itemCount)

			row.AddCell().SetValue(string(o.Status))
			row.AddCell().SetValue(string(o.PaymentStatus))
			row.AddCell().SetValue(o.CreatedAt.Format("2006-01-02 15:04:05"))
		}

		c.Header("Content-Disposition", "attachment; filename=orders.xlsx")
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Transfer-Encoding", "binary")
		c.Header("Expires", "0")

		if err := file.Write(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write Excel file"})
			return
		}
	}
}
