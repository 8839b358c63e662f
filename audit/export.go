package audit

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRedemption struct {
	Guild     string `parquet:"name=guild, type=BYTE_ARRAY, convertedtype=UTF8"`
	User      string `parquet:"name=user, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reward    string `parquet:"name=reward, type=BYTE_ARRAY, convertedtype=UTF8"`
	Cost      int64  `parquet:"name=cost, type=INT64"`
	Balance   int64  `parquet:"name=balance, type=INT64"`
	Via       string `parquet:"name=via, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportRedemptions writes the guild's redemption history to a parquet file
// and reports the number of rows written.
func (s *Store) ExportRedemptions(ctx context.Context, guildID, path string, limit int) (int, error) {
	records, err := s.RedemptionHistory(ctx, guildID, limit)
	if err != nil {
		return 0, err
	}
	if err := writeParquet(path, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func writeParquet(path string, records []RedemptionRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audit: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRedemption), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("audit: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range records {
		row := &parquetRedemption{
			Guild:     record.GuildID,
			User:      record.UserID,
			Reward:    record.Reward,
			Cost:      int64(record.Cost),
			Balance:   int64(record.Balance),
			Via:       record.Via,
			CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("audit: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("audit: finalize parquet: %w", err)
	}
	return file.Close()
}
